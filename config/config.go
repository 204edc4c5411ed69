package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrNoServer indicates the requested server name is not in the registry.
var ErrNoServer = errors.New("no server configured")

// ParseError wraps a TOML syntax or schema failure with its source path.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	// Command is the executable to run.
	Command string `toml:"command"`

	// Args are command-line arguments.
	Args []string `toml:"args"`

	// Env are additional environment variables, merged over the
	// inherited environment.
	Env map[string]string `toml:"env"`

	// WorkDir is the working directory (defaults to the workspace root).
	WorkDir string `toml:"workdir"`

	// Languages are the language ids this server handles.
	Languages []string `toml:"languages"`

	// InitializationOptions are sent during initialize.
	InitializationOptions map[string]any `toml:"initialization_options"`

	// RequestTimeoutMS bounds individual requests issued by tools using
	// this config, in milliseconds. Zero means the tool's default.
	RequestTimeoutMS int64 `toml:"request_timeout_ms"`
}

// Timeout returns the request timeout as a duration, or fallback when the
// entry does not set one.
func (sc ServerConfig) Timeout(fallback time.Duration) time.Duration {
	if sc.RequestTimeoutMS <= 0 {
		return fallback
	}
	return time.Duration(sc.RequestTimeoutMS) * time.Millisecond
}

// Validate checks the entry is launchable.
func (sc ServerConfig) Validate() error {
	if sc.Command == "" {
		return errors.New("server config has no command")
	}
	return nil
}

// Config is the root of a langwire config file.
type Config struct {
	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// Servers is the registry, keyed by server name.
	Servers map[string]ServerConfig `toml:"servers"`
}

// Default returns an empty registry with sensible settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Servers:  make(map[string]ServerConfig),
	}
}

// Load reads a config file. A missing file yields the default config, not
// an error, so optional config layers stack cleanly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes config bytes. The path only labels errors.
func Parse(path string, data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}

	for name, sc := range cfg.Servers {
		if err := sc.Validate(); err != nil {
			return nil, &ParseError{Path: path, Message: fmt.Sprintf("server %q: %v", name, err), Err: err}
		}
	}
	return cfg, nil
}

// Server looks up a registry entry by name.
func (c *Config) Server(name string) (ServerConfig, error) {
	sc, ok := c.Servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %s", ErrNoServer, name)
	}
	return sc, nil
}

// ServerForLanguage finds an entry claiming the language id. When several
// entries claim it, which one is returned is not defined.
func (c *Config) ServerForLanguage(languageID string) (string, ServerConfig, error) {
	for name, sc := range c.Servers {
		for _, lang := range sc.Languages {
			if lang == languageID {
				return name, sc, nil
			}
		}
	}
	return "", ServerConfig{}, fmt.Errorf("%w for language %s", ErrNoServer, languageID)
}
