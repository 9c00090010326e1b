package cli

import (
	"flag"
)

// Config carries the CLI-wide settings shared by every subcommand.
type Config struct {
	Server  string // daemon base URL for remote commands
	Library string // explicit library root for local commands
	LogLvl  string
}

// DefaultConfig resolves defaults from the environment.
func DefaultConfig() *Config {
	return &Config{
		Server:  envStr("PACKD_SERVER", "http://127.0.0.1:8080"),
		Library: envStr("PACKD_LIBRARY_DIR", ""),
		LogLvl:  envStr("PACKCTL_LOG_LEVEL", "info"),
	}
}

// ParseConfigWith binds the shared flags onto fs and parses args, returning
// the resulting config and remaining positional arguments.
func ParseConfigWith(fs *flag.FlagSet, args []string) (*Config, []string) {
	cfg := DefaultConfig()
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Daemon base URL (defaults PACKD_SERVER)")
	fs.StringVar(&cfg.Library, "library", cfg.Library, "Library root directory (defaults PACKD_LIBRARY_DIR)")
	fs.StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults PACKCTL_LOG_LEVEL or info)")
	_ = fs.Parse(args)
	return cfg, fs.Args()
}
