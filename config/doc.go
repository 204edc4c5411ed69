// Package config loads the langwire server registry from a TOML file and
// optionally watches it for changes.
//
// A config file names the language servers a tool knows how to launch:
//
//	log_level = "info"
//
//	[servers.go]
//	command = "gopls"
//	args = ["serve"]
//	languages = ["go"]
//
//	[servers.rust]
//	command = "rust-analyzer"
//	languages = ["rust"]
//	[servers.rust.env]
//	RA_LOG = "error"
//
// The library never requires a config file; this package exists for tools
// (like cmd/langwire) that drive the client from the command line.
package config
