// Package multipartcfg loads the JSON configuration for the mpfdstream
// CLI harness: the parser's tunables plus the set of named targets to
// register before a body is streamed through it.
//
// Grounded on config.go's ReadConfig (JSON-unmarshal-then-validate shape)
// and api.go's AppConfig (flat, JSON-tagged struct with string fields for
// anything that's really an enum, e.g. LogFile/LogLevel there and Kind
// here).
package multipartcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// TargetSpec describes one entry of the dispatch table to build before
// streaming a body (spec 3/6.2): a part name plus which built-in target
// variant to register for it, and that variant's own settings.
type TargetSpec struct {
	// Name is the part's Content-Disposition name.
	Name string `json:"name"`
	// Kind selects the target variant: "value", "null", "file",
	// "file_using_remote_name", or "sha256".
	Kind string `json:"kind"`
	// Path is the destination file path, for Kind == "file".
	Path string `json:"path,omitempty"`
	// Directory is the destination directory, for
	// Kind == "file_using_remote_name".
	Directory string `json:"directory,omitempty"`
	// Dedup wraps the target in target.Dedup when true, skipping
	// bodies whose content digest has already been seen this run.
	Dedup bool `json:"dedup,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	// MaxHeaderBlock overrides the parser's advisory header-block cap
	// (spec 5). Zero means use the built-in default.
	MaxHeaderBlock int `json:"max_header_block,omitempty"`
	// LogFile is passed to logging.GetLogger: a file path, or one of
	// "stdout", "stderr", "off".
	LogFile string `json:"log_file,omitempty"`
	// LogLevel is a logrus level name ("debug", "info", "warn", ...).
	LogLevel string `json:"log_level,omitempty"`
	// Targets lists the part names to register before streaming.
	Targets []TargetSpec `json:"targets"`
}

// ReadConfig loads and validates the JSON document at path.
func ReadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("multipartcfg: could not read config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("multipartcfg: could not parse config file: %w", err)
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("multipartcfg: empty targets is not allowed")
	}
	seen := make(map[string]bool, len(cfg.Targets))
	for _, ts := range cfg.Targets {
		if ts.Name == "" {
			return nil, fmt.Errorf("multipartcfg: target with empty name")
		}
		if seen[ts.Name] {
			return nil, fmt.Errorf("multipartcfg: duplicate target name %q", ts.Name)
		}
		seen[ts.Name] = true
		switch ts.Kind {
		case "value", "null", "sha256":
		case "file":
			if ts.Path == "" {
				return nil, fmt.Errorf("multipartcfg: target %q: file kind requires path", ts.Name)
			}
		case "file_using_remote_name":
			if ts.Directory == "" {
				return nil, fmt.Errorf("multipartcfg: target %q: file_using_remote_name kind requires directory", ts.Name)
			}
		default:
			return nil, fmt.Errorf("multipartcfg: target %q: unknown kind %q", ts.Name, ts.Kind)
		}
	}
	return &cfg, nil
}
