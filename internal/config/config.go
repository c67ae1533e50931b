package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Sessions struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		TTL        string `yaml:"ttl"`
		PendingTTL string `yaml:"pending_ttl"`
		Cookie     struct {
			Domain   string `yaml:"domain"`
			SameSite string `yaml:"samesite"`
			Secure   bool   `yaml:"secure"`
		} `yaml:"cookie"`
	} `yaml:"sessions"`

	// Secrets apunta al archivo YAML con las credenciales por proveedor.
	Secrets struct {
		File string `yaml:"file"`
	} `yaml:"secrets"`

	Login struct {
		// Role es el nombre del rol que recibe todo login exitoso.
		Role string `yaml:"role"`
		// StateSecret firma el parámetro state (OAuth 2.0). Vacío lo
		// deshabilita.
		StateSecret string `yaml:"state_secret"`
		StateTTL    string `yaml:"state_ttl"`
	} `yaml:"login"`

	// Roles mapea nombre de rol → id.
	Roles map[string]string `yaml:"roles"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Sessions.Kind == "" {
		c.Sessions.Kind = "memory"
	}
	if c.Sessions.TTL == "" {
		c.Sessions.TTL = "24h"
	}
	if c.Sessions.PendingTTL == "" {
		c.Sessions.PendingTTL = "10m"
	}
	if c.Sessions.Cookie.SameSite == "" {
		c.Sessions.Cookie.SameSite = "Lax"
	}
	if c.Sessions.Redis.Prefix == "" {
		c.Sessions.Redis.Prefix = "session:"
	}
	if c.Login.Role == "" {
		c.Login.Role = "user"
	}
	if c.Login.StateTTL == "" {
		c.Login.StateTTL = "10m"
	}
	if c.Roles == nil {
		c.Roles = map[string]string{}
	}

	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, err
	}

	// Ruta de secrets relativa ⇒ respecto al directorio del YAML.
	if p := strings.TrimSpace(c.Secrets.File); p != "" && !filepath.IsAbs(p) {
		c.Secrets.File = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}

	return &c, nil
}

// SessionTTL devuelve el TTL de sesiones autenticadas ya parseado.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Sessions.TTL)
	return d
}

// PendingTTL devuelve el TTL de sesiones pendientes ya parseado.
func (c *Config) PendingTTL() time.Duration {
	d, _ := time.ParseDuration(c.Sessions.PendingTTL)
	return d
}

// StateTTL devuelve el TTL del state firmado ya parseado.
func (c *Config) StateTTL() time.Duration {
	d, _ := time.ParseDuration(c.Login.StateTTL)
	return d
}

func (c *Config) validate() error {
	for _, tt := range []string{c.Sessions.TTL, c.Sessions.PendingTTL, c.Login.StateTTL} {
		if tt == "" {
			continue
		}
		if _, err := time.ParseDuration(tt); err != nil {
			return fmt.Errorf("config: bad duration %q: %w", tt, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return fmt.Errorf("config: bad duration %q: %w", c.Storage.Postgres.ConnMaxLifetime, err)
		}
	}
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Sessions.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown sessions kind %q", c.Sessions.Kind)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage driver postgres requires dsn")
	}
	if c.Sessions.Kind == "redis" && c.Sessions.Redis.Addr == "" {
		return fmt.Errorf("config: sessions kind redis requires addr")
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// SESSIONS
	if v, ok := getEnvStr("SESSIONS_KIND"); ok {
		c.Sessions.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Sessions.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Sessions.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Sessions.Redis.Prefix = v
	}
	if v, ok := getEnvStr("SESSIONS_TTL"); ok {
		c.Sessions.TTL = v
	}
	if v, ok := getEnvStr("SESSIONS_PENDING_TTL"); ok {
		c.Sessions.PendingTTL = v
	}
	if v, ok := getEnvStr("SESSIONS_COOKIE_DOMAIN"); ok {
		c.Sessions.Cookie.Domain = v
	}
	if v, ok := getEnvStr("SESSIONS_COOKIE_SAMESITE"); ok {
		c.Sessions.Cookie.SameSite = v
	}
	if v, ok := getEnvBool("SESSIONS_COOKIE_SECURE"); ok {
		c.Sessions.Cookie.Secure = v
	}

	// SECRETS
	if v, ok := getEnvStr("SECRETS_FILE"); ok {
		c.Secrets.File = v
	}

	// LOGIN
	if v, ok := getEnvStr("LOGIN_ROLE"); ok {
		c.Login.Role = v
	}
	if v, ok := getEnvStr("LOGIN_STATE_SECRET"); ok {
		c.Login.StateSecret = v
	}
	if v, ok := getEnvStr("LOGIN_STATE_TTL"); ok {
		c.Login.StateTTL = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}
