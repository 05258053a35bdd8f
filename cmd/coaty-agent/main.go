// Command coaty-agent is a minimal agent container: it loads a
// communication configuration, starts a [comm.Manager], advertises
// itself and its configured IoNodes, and either runs until signaled
// or executes one of a small set of diagnostic subcommands. Uses a
// plain flag.Args()[0] subcommand switch, a slog text or JSON handler, and
// signal.NotifyContext for shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/comm"
	"github.com/coatyio/coaty-go/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: coaty-agent [-config path] <join|advertise|observe-advertise>")
		os.Exit(1)
	}

	logger := newLogger(*logLevel)

	path, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("no configuration found", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("loading configuration", "path", path, "error", err)
		os.Exit(1)
	}
	if *logLevel == "" && cfg.LogLevel != "" {
		logger = newLogger(cfg.LogLevel)
	}

	switch flag.Arg(0) {
	case "join":
		runJoin(logger, cfg)
	case "advertise":
		runAdvertise(logger, cfg)
	case "observe-advertise":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: coaty-agent observe-advertise <objectType>")
			os.Exit(1)
		}
		runObserveAdvertise(logger, cfg, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", flag.Arg(0))
		os.Exit(1)
	}
}

// newLogger builds a text handler for interactive terminals (where a
// human is watching) and a JSON handler otherwise (piped into a log
// aggregator or running under a container supervisor, where structured
// lines matter more than readability).
func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level != "" {
		if parsed, err := config.ParseLogLevel(level); err == nil {
			lvl = parsed
		}
	}
	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: config.ReplaceLogLevelNames}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newManager(ctx context.Context, logger *slog.Logger, cfg *config.Config, agentName string) (*comm.Manager, error) {
	opts, err := cfg.Resolve(agentName, logger)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	m := comm.New(logger)
	if err := m.Start(ctx, &opts); err != nil {
		return nil, fmt.Errorf("starting communication manager: %w", err)
	}
	return m, nil
}

// runJoin starts the Manager and blocks until SIGINT/SIGTERM, then
// unjoins cleanly. This is the long-running agent process shape.
func runJoin(logger *slog.Logger, cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := newManager(ctx, logger, cfg, "coaty-agent")
	if err != nil {
		logger.Error("join failed", "error", err)
		os.Exit(1)
	}
	logger.Info("joined", "namespace", cfg.Namespace)

	detach := m.ObserveCommunicationState().Subscribe(func(s binding.CommunicationState) {
		logger.Info("communication state changed", "state", s.String())
	})
	defer detach()

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		logger.Error("unjoin failed", "error", err)
		os.Exit(1)
	}
}

// runAdvertise joins briefly, publishes a single Advertise of a
// demonstration CoatyObject, and exits. Useful for smoke-testing a
// broker/binding without running the full agent loop.
func runAdvertise(logger *slog.Logger, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := newManager(ctx, logger, cfg, "coaty-agent-cli")
	if err != nil {
		logger.Error("join failed", "error", err)
		os.Exit(1)
	}
	defer m.Stop(context.Background())

	obj := coatyobj.CoatyObject{
		ObjectId:   coatyobj.NewObjectId(),
		ObjectType: "coaty-agent.cli.Ping",
		CoreType:   "CoatyObject",
		Name:       "coaty-agent advertise",
	}
	if err := m.PublishAdvertise(ctx, obj, nil); err != nil {
		logger.Error("publish advertise failed", "error", err)
		os.Exit(1)
	}
	out, _ := json.Marshal(obj)
	fmt.Println(string(out))
}

// runObserveAdvertise joins and prints every Advertise matching the
// given objectType until interrupted.
func runObserveAdvertise(logger *slog.Logger, cfg *config.Config, objectType string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := newManager(ctx, logger, cfg, "coaty-agent-observer")
	if err != nil {
		logger.Error("join failed", "error", err)
		os.Exit(1)
	}
	defer m.Stop(context.Background())

	stream, err := m.ObserveAdvertise(comm.TypeFilter{ObjectType: objectType})
	if err != nil {
		logger.Error("observe advertise failed", "error", err)
		os.Exit(1)
	}
	detach := stream.Subscribe(func(data *coatyobj.AdvertiseData) {
		out, _ := json.Marshal(data.Object)
		fmt.Println(string(out))
	})
	defer detach()

	<-ctx.Done()
}
