// Package config loads the agent container's configuration: the
// communication binding selection, namespace, and the local IoNode
// topology. Same YAML-plus-env-expansion load pipeline, search-path
// resolution, and applyDefaults/Validate split as a typical Go
// service config package, generalized here to a Communication
// Manager's Options.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coatyio/coaty-go/internal/coatyobj"
)

// searchPathsFunc is overridden in tests to avoid picking up real
// config files from a developer's or deploy machine's search path.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order: an explicit
// path (from a -config flag) is checked first by FindConfig; absent
// that, ./config.yaml, ~/.config/coaty-go/config.yaml,
// /config/config.yaml, /etc/coaty-go/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "coaty-go", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/coaty-go/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// path that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// Config is the on-disk shape of a container's communication
// configuration. Load returns it as is; [Config.Resolve] turns it into
// a comm.Options value.
type Config struct {
	Namespace                    string              `yaml:"namespace"`
	ShouldEnableCrossNamespacing bool                `yaml:"should_enable_cross_namespacing"`
	ShouldAutoStart              bool                `yaml:"should_auto_start"`
	Binding                      BindingConfig       `yaml:"binding"`
	BrokerUrl                    string              `yaml:"broker_url"`
	MQTTClientOptions            MQTTClientOptions   `yaml:"mqtt_client_options"`
	TLSOptions                   TLSOptions          `yaml:"tls_options"`
	Common                       CommonConfig        `yaml:"common"`
	LogLevel                     string              `yaml:"log_level"`
}

// BindingConfig names a pluggable Binding implementation and its
// binding-specific options. Type is "mqtt" (default), "nats", or "ws";
// Options is passed through to that binding's constructor.
type BindingConfig struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// MQTTClientOptions mirrors the subset of binding.MQTTOptions a
// deployment configures from YAML.
type MQTTClientOptions struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	KeepAlive  uint16 `yaml:"keep_alive"`
	PublishQoS byte   `yaml:"publish_qos"`
}

// TLSOptions holds the file paths for a TLS client configuration; Load
// does not read certificate bytes itself, only records the paths for
// the binding constructor to consume.
type TLSOptions struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// CommonConfig carries the agent identity override and the local IO
// context node topology.
type CommonConfig struct {
	AgentIdentity  AgentIdentityConfig        `yaml:"agent_identity"`
	IoContextNodes map[string]IoNodeConfig    `yaml:"io_context_nodes"`
}

// AgentIdentityConfig is a partial override of the agent's Identity.
// CoreType and ObjectType cannot be overridden; Name, if set,
// replaces the generated default.
type AgentIdentityConfig struct {
	Name string `yaml:"name"`
}

// IoNodeConfig is the YAML shape of one entry in common.ioContextNodes:
// the map key is the context name (IoNode.Name).
type IoNodeConfig struct {
	IoSources       []IoPointConfig   `yaml:"io_sources"`
	IoActors        []IoActorConfig   `yaml:"io_actors"`
	Characteristics map[string]string `yaml:"characteristics"`
}

// IoPointConfig is a configured IoSource.
type IoPointConfig struct {
	Name          string `yaml:"name"`
	ValueType     string `yaml:"value_type"`
	ExternalRoute string `yaml:"external_route"`
}

// IoActorConfig is a configured IoActor.
type IoActorConfig struct {
	Name           string `yaml:"name"`
	ValueType      string `yaml:"value_type"`
	UseRawIoValues bool   `yaml:"use_raw_io_values"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, every field is usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${MQTT_BROKER_URL}, ${MQTT_PASSWORD})
	// for container deployments that inject secrets via the environment.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with their defaults.
// Called automatically by Load.
func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "-"
	}
	if c.Binding.Type == "" {
		c.Binding.Type = "mqtt"
	}
	if c.MQTTClientOptions.KeepAlive == 0 {
		c.MQTTClientOptions.KeepAlive = 30
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if !isValidTopicLevel(c.Namespace) {
		return fmt.Errorf("namespace %q is not a valid topic level", c.Namespace)
	}
	switch c.Binding.Type {
	case "mqtt", "nats", "ws":
	default:
		return fmt.Errorf("binding.type %q not recognized (want mqtt, nats, or ws)", c.Binding.Type)
	}
	if c.Binding.Type == "mqtt" && c.BrokerUrl == "" {
		return fmt.Errorf("broker_url is required for the mqtt binding")
	}
	for name, node := range c.Common.IoContextNodes {
		if !isValidTopicLevel(name) {
			return fmt.Errorf("common.io_context_nodes key %q is not a valid topic level", name)
		}
		for _, s := range node.IoSources {
			if s.Name == "" || s.ValueType == "" {
				return fmt.Errorf("io node %q: source missing name or value_type", name)
			}
		}
		for _, a := range node.IoActors {
			if a.Name == "" || a.ValueType == "" {
				return fmt.Errorf("io node %q: actor missing name or value_type", name)
			}
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// isValidTopicLevel is a local copy of the topic codec's validity rule
// (internal/topic.IsValidTopicLevel); no test compares the two.
func isValidTopicLevel(s string) bool {
	if s == "" || len(s) > 65535 {
		return false
	}
	for _, r := range s {
		switch r {
		case 0, '#', '+', '/':
			return false
		}
	}
	return true
}

// LevelWire is a log level below Debug reserved for per-message wire
// forensics: the topic and payload of every publication and inbound
// dispatch a binding handles. Ordinary debugging never needs it; it
// exists so a misbehaving broker conversation can be reconstructed
// from logs alone.
const LevelWire = slog.Level(-8)

// ParseLogLevel converts the log_level config value (or the
// -log-level flag) to a slog.Level. Recognized values: wire, debug,
// info, warn, error (case-insensitive); empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "wire":
		return LevelWire, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: wire, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is a slog.HandlerOptions.ReplaceAttr hook that
// labels LevelWire records "WIRE"; without it slog renders the custom
// level as the unhelpful "DEBUG-4".
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelWire {
			a.Value = slog.StringValue("WIRE")
		}
	}
	return a
}

// BuildIoNodes materializes the configured IoNodeConfig map into
// coatyobj.IoNode values with fresh object ids, ready to hand to
// comm.Options.IoNodes.
func (c *Config) BuildIoNodes() ([]coatyobj.IoNode, error) {
	nodes := make([]coatyobj.IoNode, 0, len(c.Common.IoContextNodes))
	for contextName, nc := range c.Common.IoContextNodes {
		sources := make([]coatyobj.IoSource, 0, len(nc.IoSources))
		for _, s := range nc.IoSources {
			sources = append(sources, coatyobj.IoSource{
				CoatyObject: coatyobj.CoatyObject{
					ObjectId:   coatyobj.NewObjectId(),
					ObjectType: "coaty.IoSource",
					CoreType:   coatyobj.CoreTypeIoSource,
					Name:       s.Name,
				},
				ValueType:     s.ValueType,
				ExternalRoute: s.ExternalRoute,
			})
		}
		actors := make([]coatyobj.IoActor, 0, len(nc.IoActors))
		for _, a := range nc.IoActors {
			actors = append(actors, coatyobj.IoActor{
				CoatyObject: coatyobj.CoatyObject{
					ObjectId:   coatyobj.NewObjectId(),
					ObjectType: "coaty.IoActor",
					CoreType:   coatyobj.CoreTypeIoActor,
					Name:       a.Name,
				},
				ValueType:      a.ValueType,
				UseRawIoValues: a.UseRawIoValues,
			})
		}
		node, err := coatyobj.NewIoNode(contextName, sources, actors)
		if err != nil {
			return nil, fmt.Errorf("io node %q: %w", contextName, err)
		}
		node.Characteristics = nc.Characteristics
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ConnectTimeout is a 15-second connect timeout. No binding
// constructor or Join in this module reads it.
const ConnectTimeout = 15 * time.Second
