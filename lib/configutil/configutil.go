package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

func readLayer[T any](path string, out *T) (bool, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(contents, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads a json5 configuration file. `name` must carry an
// extension, the local override file is derived from it. Layers, later
// wins:
//  1. <name>.<ext>
//  2. <name>.local.<ext>
//
// os.ErrNotExist is returned when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T

	prefix, ext := splitExt(name)
	foundBase, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	localPath := fmt.Sprintf("%s.local.%s", prefix, ext)
	var override T
	foundLocal, err := readLayer(localPath, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		if err := mergo.Merge(&out, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if !foundBase && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively is ReadConfig but it walks up from the working directory
// until a directory containing the file is found.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return defaultOut, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return defaultOut, os.ErrNotExist
		}
		current = parent
	}
}

// ApplyDefaults fills every zero field of cfg from defaults. A pointer field
// counts as set once it is non-nil, so a field whose zero value is
// meaningful should be a pointer.
func ApplyDefaults[T any](cfg *T, defaults T) error {
	return mergo.Merge(cfg, defaults, mergo.WithoutDereference)
}

// StatePrefix marks a path as relative to the state directory.
const StatePrefix = "<state>"

// StateDir is where runtime files (profiles, exports, vaults) live:
// $REPEATBOT_STATE_DIR, or .state in the working directory.
func StateDir() (string, error) {
	if dir := os.Getenv("REPEATBOT_STATE_DIR"); dir != "" {
		return filepath.Abs(dir)
	}
	return filepath.Abs(".state")
}

// ResolvePath expands a leading "<state>" segment to StateDir, creating it
// if needed. Other paths are returned unchanged.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, StatePrefix) {
		return path, nil
	}
	root, err := StateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return "", err
	}
	sub := strings.TrimLeft(strings.TrimPrefix(path, StatePrefix), `/\`)
	return filepath.Join(root, sub), nil
}

// EnvString overwrites *dst with the variable's value when it is set and
// non empty.
func EnvString(key string, dst *string) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return false
	}
	*dst = strings.TrimSpace(v)
	return true
}

// EnvBool is EnvString for booleans, unparseable values are ignored.
func EnvBool(key string, dst *bool) bool {
	var raw string
	if !EnvString(key, &raw) {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("ignoring unparseable boolean in environment", "key", key, "value", raw)
		return false
	}
	*dst = v
	return true
}

// AnySet reports whether any of the variables is set to a non empty value.
func AnySet(keys ...string) bool {
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) != "" {
			return true
		}
	}
	return false
}
