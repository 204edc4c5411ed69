package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
log_level = "debug"

[servers.go]
command = "gopls"
args = ["serve"]
languages = ["go"]
request_timeout_ms = 15000

[servers.go.env]
GOFLAGS = "-mod=readonly"

[servers.rust]
command = "rust-analyzer"
languages = ["rust"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "langwire.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(cfg.Servers))
	}

	sc, err := cfg.Server("go")
	if err != nil {
		t.Fatalf("Server(go) error = %v", err)
	}
	if sc.Command != "gopls" || len(sc.Args) != 1 || sc.Args[0] != "serve" {
		t.Errorf("go server = %+v", sc)
	}
	if sc.Env["GOFLAGS"] != "-mod=readonly" {
		t.Errorf("env = %v", sc.Env)
	}
	if got := sc.Timeout(time.Second); got != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", got)
	}
}

func TestLoad_MissingFileIsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Servers) != 0 || cfg.LogLevel != "info" {
		t.Errorf("default config = %+v", cfg)
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("bad.toml", []byte("servers = ["))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if parseErr.Path != "bad.toml" {
		t.Errorf("path = %q", parseErr.Path)
	}
}

func TestParse_MissingCommand(t *testing.T) {
	_, err := Parse("x.toml", []byte("[servers.go]\nargs = [\"serve\"]\n"))
	if err == nil {
		t.Fatal("Parse() accepted a server with no command")
	}
}

func TestServer_Unknown(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Server("nope"); !errors.Is(err, ErrNoServer) {
		t.Errorf("Server() error = %v, want ErrNoServer", err)
	}
}

func TestServerForLanguage(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	name, sc, err := cfg.ServerForLanguage("rust")
	if err != nil || name != "rust" || sc.Command != "rust-analyzer" {
		t.Errorf("ServerForLanguage(rust) = %q, %+v, %v", name, sc, err)
	}

	if _, _, err := cfg.ServerForLanguage("cobol"); !errors.Is(err, ErrNoServer) {
		t.Errorf("ServerForLanguage(cobol) error = %v, want ErrNoServer", err)
	}
}

func TestTimeout_Fallback(t *testing.T) {
	sc := ServerConfig{Command: "x"}
	if got := sc.Timeout(7 * time.Second); got != 7*time.Second {
		t.Errorf("Timeout() = %v, want fallback", got)
	}
}
