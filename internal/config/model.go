// internal/config/model.go
//
// Typed configuration model for the participant engine.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                       – dotenv values,
//   • `conf/global.yaml`                    – primary static file,
//   • `PDB_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import (
	"time"

	"github.com/go-sql-driver/mysql"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// GeoIPDB is an optional GeoLite2-City file for request audit logs.
	GeoIPDB string `koanf:"geoip_db"`
	// BlockBotSignup refuses anonymous signups from crawler user agents.
	BlockBotSignup bool `koanf:"block_bot_signup"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host,
// port, or flags without touching Vault.  The *secret* (`Password`) is
// usually a `vault:` reference and is injected at connect time.
type Database struct {
	DSN         string `koanf:"dsn"          validate:"required"`
	Password    string `koanf:"password"`
	TablePrefix string `koanf:"table_prefix" validate:"omitempty,max=32"`
	MaxOpen     int    `koanf:"max_open"     validate:"gte=0"`
	MaxIdle     int    `koanf:"max_idle"     validate:"gte=0"`
}

// DSNWithPassword merges Password into the DSN template.  An empty
// Password leaves the template untouched.
func (d Database) DSNWithPassword() (string, error) {
	if d.Password == "" {
		return d.DSN, nil
	}
	cfg, err := mysql.ParseDSN(d.DSN)
	if err != nil {
		return "", err
	}
	cfg.Passwd = d.Password
	return cfg.FormatDSN(), nil
}

// Table returns the prefixed name of one of the engine tables.
func (d Database) Table(name string) string { return d.TablePrefix + name }

//
// Records section
//

// Records tunes how submissions are written.
type Records struct {
	AllowEmptyOverwrite bool   `koanf:"allow_empty_overwrite"`
	DeleteUploadedFiles bool   `koanf:"delete_uploaded_files"`
	UploadDir           string `koanf:"upload_dir"`
	PrivateIDLength     int    `koanf:"private_id_length" validate:"gte=4,lte=32"`
	StrictDates         bool   `koanf:"strict_dates"`
}

//
// Calc section
//

// Calc tunes the dynamic field resolver.
type Calc struct {
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	CacheSize  int           `koanf:"cache_size" validate:"gte=0"`
	KeywordTTL time.Duration `koanf:"keyword_ttl"`
}

//
// Locale section
//

// Locale drives number, currency, and date output.
type Locale struct {
	Language   string `koanf:"language"    validate:"required"`
	Currency   string `koanf:"currency"    validate:"required,len=3"`
	Timezone   string `koanf:"timezone"    validate:"required,timezone"`
	DateLayout string `koanf:"date_layout" validate:"required"`
	TimeLayout string `koanf:"time_layout"`
}

//
// Admin list section
//

// AdminList tunes the admin record list.
type AdminList struct {
	RecentFields  int `koanf:"recent_fields"  validate:"gte=1"`
	PageSize      int `koanf:"page_size"      validate:"gte=1"`
	FilterVersion int `koanf:"filter_version" validate:"gte=1"`
}

//
// Queue section
//

// Queue configures the background recompute dispatcher.
type Queue struct {
	Driver       string        `koanf:"driver"     validate:"oneof=memory redis"`
	RedisAddr    string        `koanf:"redis_addr" validate:"required_if=Driver redis"`
	RedisKey     string        `koanf:"redis_key"`
	SliceSize    int           `koanf:"slice_size" validate:"gte=1"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

//
// Log section
//

// Log configures the file logger.
type Log struct {
	Tee   bool   `koanf:"tee"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // PDB_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Records   Records   `koanf:"records"`
	Calc      Calc      `koanf:"calc"`
	Locale    Locale    `koanf:"locale"`
	AdminList AdminList `koanf:"admin_list"`
	Queue     Queue     `koanf:"queue"`
	Log       Log       `koanf:"log"`
	Paths     Paths     `koanf:"-"`
}

// defaults are loaded beneath the YAML layer so a sparse global.yaml works.
var defaults = map[string]any{
	"http.listen_addr":          ":8080",
	"http.read_timeout":         "10s",
	"http.write_timeout":        "15s",
	"http.block_bot_signup":     true,
	"database.table_prefix":     "pdb_",
	"database.max_open":         15,
	"database.max_idle":         5,
	"records.private_id_length": 6,
	"records.upload_dir":        "uploads",
	"calc.cache_ttl":            "1h",
	"calc.cache_size":           5000,
	"calc.keyword_ttl":          "1h",
	"locale.language":           "en-US",
	"locale.currency":           "USD",
	"locale.timezone":           "UTC",
	"locale.date_layout":        "January 2, 2006",
	"locale.time_layout":        "3:04 pm",
	"admin_list.recent_fields":  6,
	"admin_list.page_size":      20,
	"admin_list.filter_version": 2,
	"queue.driver":              "memory",
	"queue.redis_key":           "pdb:recompute",
	"queue.slice_size":          50,
	"queue.poll_interval":       "2s",
	"log.level":                 "info",
}
