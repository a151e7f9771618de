package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// EnvPrefix is stripped from environment variables before they are offered
// to ${VAR:default} placeholders in the config file.
const EnvPrefix = "MOVIERATINGS_"

// Bootstrap is the root of the service configuration.
type Bootstrap struct {
	Server *Server `json:"server" validate:"required"`
	Data   *Data   `json:"data" validate:"required"`
	Movies *Movies `json:"movies" validate:"required"`
	Omdb   *Omdb   `json:"omdb" validate:"required"`
	Log    *Log    `json:"log"`
}

type Server struct {
	HTTP *HTTP `json:"http" validate:"required"`
	GRPC *GRPC `json:"grpc"`
}

type HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
	// TrustForwarded makes the first X-Forwarded-For entry the client address.
	TrustForwarded bool `json:"trust_forwarded"`
}

type GRPC struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

type Data struct {
	Driver   Driver    `json:"driver" validate:"required"`
	Database *Database `json:"database" validate:"required_unless=Driver memory"`
	Redis    *Redis    `json:"redis"`
}

type Database struct {
	Source          string   `json:"source" validate:"required"`
	AutoMigrate     bool     `json:"auto_migrate"`
	MaxIdleConns    int      `json:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns    int      `json:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// Redis is optional; an empty Addr disables caching.
type Redis struct {
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	DB           int      `json:"db" validate:"gte=0"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Movies holds the list bounds and the enrichment fan-out.
type Movies struct {
	ListMin           int `json:"list_min" validate:"gte=1"`
	ListMax           int `json:"list_max" validate:"gtefield=ListMin"`
	ListDefault       int `json:"list_default" validate:"gtefield=ListMin,ltefield=ListMax"`
	EnrichConcurrency int `json:"enrich_concurrency" validate:"gte=1"`
}

type Omdb struct {
	Enabled      bool     `json:"enabled"`
	BaseURL      string   `json:"base_url" validate:"omitempty,url"`
	APIKey       string   `json:"api_key"`
	Timeout      Duration `json:"timeout"`
	FetchTimeout Duration `json:"fetch_timeout"`
	MaxRetries   int      `json:"max_retries" validate:"gte=0,lte=10"`
	RateLimit    float64  `json:"rate_limit" validate:"gte=0"`
	Burst        int      `json:"burst" validate:"gte=0"`
	CacheTTL     Duration `json:"cache_ttl"`
}

type Log struct {
	Level       string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `json:"development"`
}

// Driver selects the store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func (d Driver) String() string { return string(d) }

// UnmarshalText rejects unknown drivers at load time.
func (d *Driver) UnmarshalText(text []byte) error {
	switch v := Driver(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case DriverMemory, DriverSQLite, DriverPostgres:
		*d = v
		return nil
	default:
		return fmt.Errorf("unknown data driver %q (want memory, sqlite or postgres)", string(text))
	}
}

// Duration decodes "1.5s" style strings and plain nanosecond numbers.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = Duration(n)
	return nil
}

// SetDefaults fills every zero value the service cannot run without.
func (bc *Bootstrap) SetDefaults() {
	if bc.Server == nil {
		bc.Server = &Server{}
	}
	if bc.Server.HTTP == nil {
		bc.Server.HTTP = &HTTP{}
	}
	if bc.Server.HTTP.Addr == "" {
		bc.Server.HTTP.Addr = "0.0.0.0:10702"
	}
	if bc.Server.HTTP.Timeout == 0 {
		bc.Server.HTTP.Timeout = Duration(10 * time.Second)
	}
	if bc.Data == nil {
		bc.Data = &Data{}
	}
	if bc.Data.Driver == "" {
		bc.Data.Driver = DriverMemory
	}
	if db := bc.Data.Database; db != nil {
		if db.MaxIdleConns == 0 {
			db.MaxIdleConns = 10
		}
		if db.MaxOpenConns == 0 {
			db.MaxOpenConns = 100
		}
		if db.ConnMaxLifetime == 0 {
			db.ConnMaxLifetime = Duration(time.Hour)
		}
	}
	if bc.Movies == nil {
		bc.Movies = &Movies{}
	}
	if bc.Movies.ListMin == 0 {
		bc.Movies.ListMin = 11
	}
	if bc.Movies.ListMax == 0 {
		bc.Movies.ListMax = 10000
	}
	if bc.Movies.ListDefault == 0 {
		bc.Movies.ListDefault = bc.Movies.ListMin
	}
	if bc.Movies.EnrichConcurrency == 0 {
		bc.Movies.EnrichConcurrency = 8
	}
	if bc.Omdb == nil {
		bc.Omdb = &Omdb{}
	}
	if bc.Omdb.Timeout == 0 {
		bc.Omdb.Timeout = Duration(3 * time.Second)
	}
	if bc.Omdb.FetchTimeout == 0 {
		bc.Omdb.FetchTimeout = Duration(5 * time.Second)
	}
	if bc.Omdb.CacheTTL == 0 {
		bc.Omdb.CacheTTL = Duration(time.Hour)
	}
	if bc.Log == nil {
		bc.Log = &Log{}
	}
	if bc.Log.Level == "" {
		bc.Log.Level = "info"
	}
}

// Validate checks the struct tags of the whole tree.
func (bc *Bootstrap) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(bc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if bc.Omdb != nil && bc.Omdb.Enabled && bc.Omdb.BaseURL == "" {
		return fmt.Errorf("invalid config: omdb.base_url is required when omdb is enabled")
	}
	return nil
}

// Load reads the config file (or directory) at path, overlays environment
// placeholders, applies defaults and validates the result. The returned
// close func releases the config watchers.
func Load(path string) (*Bootstrap, func(), error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
			env.NewSource(EnvPrefix),
		),
	)
	if err := c.Load(); err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	closeFn := func() { _ = c.Close() }

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("scan config: %w", err)
	}
	bc.SetDefaults()
	if err := bc.Validate(); err != nil {
		closeFn()
		return nil, nil, err
	}
	return &bc, closeFn, nil
}
