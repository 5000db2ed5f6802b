// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from four layers (highest
precedence last):

  0. Built-in defaults (see `defaults` in model.go).
  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `PDB_`, where `__` maps to “.”
     (e.g., `PDB_QUEUE__DRIVER → queue.driver`).

After merging, any string value that starts with `vault:` is handed to
the optional SecretResolver, the tree is unmarshalled into typed structs,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` calls `Load()` again
and swaps the pointer.  `Watch()` does the same whenever global.yaml
changes on disk.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, env overlay.
  • ERROR spans: YAML parse, env overlay, secret lookup, unmarshal,
    validation failures.
  • INFO  span : final “config loaded” with key highlights.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// vaultPrefix marks a value that must be fetched from Vault.
const vaultPrefix = "vault:"

// SecretResolver turns a `vault:` reference into its plain value.
// *vault.Client satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var (
	current  atomic.Pointer[Config]
	resolver atomic.Value // SecretResolver
)

// UseSecrets installs the resolver consulted by subsequent loads.
func UseSecrets(r SecretResolver) { resolver.Store(&r) }

/*──────────────────────────── root discovery ───────────────────────────────*/

// RootDir resolves PDB_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the executable heuristic for production layout.
func RootDir() string {
	if r := os.Getenv("PDB_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, env overrides, resolves secrets,
// validates, and caches Config.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), RootDir())
}

// LoadFrom is Load with an explicit root directory.
func LoadFrom(ctx context.Context, root string) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: PDB_QUEUE__DRIVER → queue.driver
	if err := k.Load(env.Provider("PDB_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "PDB_")
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k); err != nil {
		zap.S().Errorw("config secret lookup failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"queue", cfg.Queue.Driver,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every `vault:` string in k.  Without a resolver
// such values are an error rather than a silent literal.
func resolveSecrets(ctx context.Context, k *koanf.Koanf) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, vaultPrefix) {
			continue
		}
		rp, _ := resolver.Load().(*SecretResolver)
		if rp == nil || *rp == nil {
			return fmt.Errorf("config %s: vault reference but no secret resolver installed", key)
		}
		plain, err := (*rp).Resolve(ctx, strings.TrimPrefix(s, vaultPrefix))
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }

// Watch reloads the configuration whenever global.yaml changes.  Reload
// failures keep the previous Config and are logged.
func Watch(root string, onChange func(*Config)) error {
	fp := file.Provider(filepath.Join(root, "conf", "global.yaml"))
	return fp.Watch(func(_ any, err error) {
		if err != nil {
			zap.S().Warnw("config watch error", "err", err)
			return
		}
		cfg, err := LoadFrom(context.Background(), root)
		if err != nil {
			zap.S().Errorw("config reload failed, keeping previous", "err", err)
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
}
