package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/fsutil"
)

// EnvPrefix marks environment variables that override configuration keys.
// CHABA_AGENTS_TIMEOUT sets agents.timeout.
const EnvPrefix = "CHABA_"

const maxConfigFileSize = 1024 * 1024

// SearchPaths returns the locations checked when no explicit path is given,
// in order.
func SearchPaths() []string {
	paths := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "chaba", FileName))
	}
	return paths
}

// Locate returns the configuration file to load. An explicit path must
// exist. Without one, the first existing search path wins; "" means none.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", nil
}

// Load builds the configuration from defaults, the located file and the
// environment, then validates it. It returns the file used, or "" when
// only defaults and environment applied.
func Load(explicit string) (*Config, string, error) {
	path, err := Locate(explicit)
	if err != nil {
		return nil, "", err
	}

	var content []byte
	if path != "" {
		content, err = readConfigFile(path)
		if err != nil {
			return nil, "", err
		}
	}

	cfg, err := load(content)
	if err != nil {
		if path != "" {
			return nil, path, fmt.Errorf("%s: %w", path, err)
		}
		return nil, "", err
	}
	return cfg, path, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, errs.Validationf("config file %s is larger than %d bytes", path, maxConfigFileSize)
	}
	content, err := fsutil.ReadFileLimited(path, maxConfigFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return content, nil
}

func load(content []byte) (*Config, error) {
	k := koanf.New(".")

	defaults, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to render defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, errs.Serialization("parse config", err)
		}
	}

	known := envKeys(k)
	lists := make(map[string]bool)
	for _, key := range k.Keys() {
		if _, ok := k.Get(key).([]any); ok {
			lists[key] = true
		}
	}

	provider := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := known[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))]
		if !ok {
			return "", nil
		}
		if lists[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errs.Serialization("decode config", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeys maps the underscore form of every known key (agents_timeout) to
// the key itself (agents.timeout). github.token is added explicitly since
// it has no default.
func envKeys(k *koanf.Koanf) map[string]string {
	keys := make(map[string]string)
	for _, key := range append(k.Keys(), "github.token", "hooks.post_create", "agents.metrics_textfile") {
		keys[strings.ReplaceAll(key, ".", "_")] = key
	}
	return keys
}

func splitList(value string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// InitFile writes the example configuration to path. An existing file is
// only replaced when force is set.
func InitFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", errs.ErrAlreadyExists, path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.IO("stat "+path, err)
	}

	data, err := Example()
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(path, data); err != nil {
		return errs.IO("write config", err)
	}
	return nil
}
