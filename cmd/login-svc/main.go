package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/jxmono/login-providers/internal/account"
	"github.com/jxmono/login-providers/internal/config"
	httpx "github.com/jxmono/login-providers/internal/http"
	loginctrl "github.com/jxmono/login-providers/internal/http/controllers/login"
	loginsvc "github.com/jxmono/login-providers/internal/http/services/login"
	"github.com/jxmono/login-providers/internal/observability/logger"
	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/provider/bitbucket"
	"github.com/jxmono/login-providers/internal/provider/github"
	"github.com/jxmono/login-providers/internal/role"
	"github.com/jxmono/login-providers/internal/secrets"
	"github.com/jxmono/login-providers/internal/session"
	memstore "github.com/jxmono/login-providers/internal/store/memory"
	pgstore "github.com/jxmono/login-providers/internal/store/pg"
	migrations "github.com/jxmono/login-providers/migrations/postgres"
)

func main() {
	// .env sólo en dev; en prod las vars vienen del entorno real.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/config.example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "login-svc"})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Account store
	var (
		accounts account.Store
		ready    func(ctx context.Context) error
	)
	switch cfg.Storage.Driver {
	case "postgres":
		lifetime, _ := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		pg, err := pgstore.New(ctx, cfg.Storage.DSN, pgstore.Config{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			log.Fatalf("store open: %v", err)
		}
		defer pg.Close()
		if cfg.Flags.Migrate {
			if err := pg.RunMigrations(ctx, migrations.FS); err != nil {
				log.Fatalf("migrations: %v", err)
			}
		}
		accounts = pg
		ready = func(ctx context.Context) error { return pg.Pool().Ping(ctx) }
	default:
		accounts = memstore.New()
	}

	// Session store
	var sessions session.Store
	switch cfg.Sessions.Kind {
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Sessions.Redis.Addr, DB: cfg.Sessions.Redis.DB})
		defer func() { _ = client.Close() }()
		sessions = session.NewRedisStore(client, cfg.Sessions.Redis.Prefix)
	default:
		sessions = session.NewMemoryStore()
	}
	manager := session.NewManager(sessions, cfg.SessionTTL(), cfg.PendingTTL())

	// Providers
	registry := provider.NewRegistry()
	registry.Register(github.ProviderName, github.Factory)
	registry.Register(bitbucket.ProviderName, bitbucket.Factory)

	var signer loginsvc.StateSigner
	if cfg.Login.StateSecret != "" {
		signer = loginsvc.NewHMACStateSigner([]byte(cfg.Login.StateSecret), cfg.StateTTL())
	}

	service := loginsvc.NewService(loginsvc.Deps{
		Registry:    registry,
		Secrets:     secrets.NewLoader(),
		Accounts:    account.NewResolver(accounts),
		Sessions:    manager,
		Roles:       role.NewStaticResolver(cfg.Roles),
		StateSigner: signer,
	})

	metricsHandler, err := httpx.RegisterMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Login:       service,
		SecretsFile: cfg.Secrets.File,
		Role:        cfg.Login.Role,
		Cookie: loginctrl.CookieConfig{
			Domain:   cfg.Sessions.Cookie.Domain,
			SameSite: cfg.Sessions.Cookie.SameSite,
			Secure:   cfg.Sessions.Cookie.Secure,
			TTL:      cfg.SessionTTL(),
		},
		Metrics: metricsHandler,
		Ready:   ready,
	})

	srv := httpx.NewServer(cfg.Server.Addr, router)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
