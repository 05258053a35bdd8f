package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("namespace: test\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("broker_url: tcp://localhost:1883\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "broker_url: tcp://localhost:1883\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Namespace != "-" {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, "-")
	}
	if cfg.Binding.Type != "mqtt" {
		t.Errorf("Binding.Type = %q, want mqtt", cfg.Binding.Type)
	}
	if cfg.MQTTClientOptions.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", cfg.MQTTClientOptions.KeepAlive)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	os.Setenv("COATY_TEST_BROKER", "tcp://broker.example:1883")
	defer os.Unsetenv("COATY_TEST_BROKER")

	path := writeConfig(t, "broker_url: ${COATY_TEST_BROKER}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerUrl != "tcp://broker.example:1883" {
		t.Errorf("BrokerUrl = %q, want expanded env value", cfg.BrokerUrl)
	}
}

func TestLoad_MissingBrokerUrlForMQTT(t *testing.T) {
	path := writeConfig(t, "namespace: home\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "broker_url") {
		t.Fatalf("expected broker_url validation error, got %v", err)
	}
}

func TestLoad_NatsBindingSkipsBrokerUrlCheck(t *testing.T) {
	path := writeConfig(t, "binding:\n  type: nats\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Binding.Type != "nats" {
		t.Errorf("Binding.Type = %q, want nats", cfg.Binding.Type)
	}
}

func TestValidate_InvalidNamespace(t *testing.T) {
	cfg := &Config{Namespace: "a/b", BrokerUrl: "tcp://x"}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for namespace containing '/'")
	}
}

func TestValidate_UnknownBindingType(t *testing.T) {
	cfg := &Config{Namespace: "-", Binding: BindingConfig{Type: "wamp"}, BrokerUrl: "tcp://x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unrecognized binding type")
	}
}

func TestValidate_IoNodeInvalidContextName(t *testing.T) {
	cfg := &Config{
		BrokerUrl: "tcp://x",
		Common: CommonConfig{
			IoContextNodes: map[string]IoNodeConfig{
				"bad+name": {},
			},
		},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid context name")
	}
}

func TestValidate_IoSourceMissingValueType(t *testing.T) {
	cfg := &Config{
		BrokerUrl: "tcp://x",
		Common: CommonConfig{
			IoContextNodes: map[string]IoNodeConfig{
				"kitchen": {
					IoSources: []IoPointConfig{{Name: "temp"}},
				},
			},
		},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "value_type") {
		t.Fatalf("expected value_type validation error, got %v", err)
	}
}

func TestBuildIoNodes(t *testing.T) {
	cfg := &Config{
		Common: CommonConfig{
			IoContextNodes: map[string]IoNodeConfig{
				"kitchen": {
					IoSources: []IoPointConfig{{Name: "tempSensor", ValueType: "number"}},
					IoActors:  []IoActorConfig{{Name: "display", ValueType: "number", UseRawIoValues: true}},
				},
			},
		},
	}

	nodes, err := cfg.BuildIoNodes()
	if err != nil {
		t.Fatalf("BuildIoNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	n := nodes[0]
	if n.Name != "kitchen" {
		t.Errorf("Name = %q, want kitchen", n.Name)
	}
	if len(n.IoSources) != 1 || n.IoSources[0].Name != "tempSensor" {
		t.Fatalf("unexpected sources: %+v", n.IoSources)
	}
	if len(n.IoActors) != 1 || !n.IoActors[0].UseRawIoValues {
		t.Fatalf("unexpected actors: %+v", n.IoActors)
	}
	if n.IoSources[0].ObjectId == "" || n.IoActors[0].ObjectId == "" {
		t.Fatal("expected fresh object ids for io points")
	}
}

func TestParseLogLevel(t *testing.T) {
	if _, err := ParseLogLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if lvl, err := ParseLogLevel("DEBUG"); err != nil || lvl.String() != "DEBUG" {
		t.Fatalf("ParseLogLevel(DEBUG) = %v, %v", lvl, err)
	}
	if lvl, err := ParseLogLevel("wire"); err != nil || lvl != LevelWire {
		t.Fatalf("ParseLogLevel(wire) = %v, %v; want LevelWire", lvl, err)
	}
}

func TestReplaceLogLevelNamesLabelsWire(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelWire)})
	if a.Value.String() != "WIRE" {
		t.Fatalf("wire level rendered as %q, want WIRE", a.Value.String())
	}
	b := ReplaceLogLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)})
	if b.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Fatal("non-wire levels must pass through unchanged")
	}
}
