package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the FerretBot configuration file.
const ConfigFileName = "ferretbot.toml"

// FindConfigFile walks up from the given directory to find ferretbot.toml.
// Returns the absolute path to the config file, or an empty string if not found.
// Stops at the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root.
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the TOML file at the given path and returns the
// configuration and TOML metadata. The metadata distinguishes keys the file
// actually set from zero values, and detects unknown keys via
// MetaData.Undecoded().
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, md, nil
}

// Load finds, parses, and resolves configuration starting from startDir.
// When no ferretbot.toml exists the result carries defaults with an empty
// Path, which is not an error: FerretBot runs fine in an unconfigured
// directory. Relative paths in the [daemon] and [paths] sections are
// anchored at the config file's directory (or startDir when no file was
// found) so the daemon behaves the same regardless of where it was started.
//
// envFn is usually os.LookupEnv; overrides may be nil.
func Load(startDir string, envFn EnvFunc, overrides *CLIOverrides) (*ResolvedConfig, *toml.MetaData, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		return nil, nil, err
	}

	var (
		fileCfg *Config
		meta    *toml.MetaData
	)
	root := startDir
	if path != "" {
		cfg, md, err := LoadFromFile(path)
		if err != nil {
			return nil, nil, err
		}
		fileCfg = cfg
		meta = &md
		root = filepath.Dir(path)
	}

	resolved := Resolve(NewDefaults(), fileCfg, meta, envFn, overrides)
	resolved.Path = path
	resolvePaths(resolved.Config, root)
	return resolved, meta, nil
}

// LoadAt is Load for an explicit config file path, as given by a
// --config flag. Unlike Load, a missing file is an error here: the user
// named it.
func LoadAt(path string, envFn EnvFunc, overrides *CLIOverrides) (*ResolvedConfig, *toml.MetaData, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving path: %w", err)
	}
	cfg, md, err := LoadFromFile(abs)
	if err != nil {
		return nil, nil, err
	}
	resolved := Resolve(NewDefaults(), cfg, &md, envFn, overrides)
	resolved.Path = abs
	resolvePaths(resolved.Config, filepath.Dir(abs))
	return resolved, &md, nil
}

// resolvePaths anchors the relative path-valued settings at root.
func resolvePaths(cfg *Config, root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	cfg.Daemon.Socket = resolvePath(cfg.Daemon.Socket, abs)
	cfg.Paths.Workspace = resolvePath(cfg.Paths.Workspace, abs)
	cfg.Paths.Storage = resolvePath(cfg.Paths.Storage, abs)
	cfg.Paths.Workflows = resolvePath(cfg.Paths.Workflows, abs)
}

func resolvePath(p, root string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
