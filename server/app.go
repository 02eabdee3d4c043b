package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"manualbase/config"
	"manualbase/internal/backend"
	"manualbase/internal/catalog"
	"manualbase/internal/chat"
	"manualbase/internal/db"
	"manualbase/internal/guard"
	"manualbase/internal/health"
	"manualbase/internal/logs"
	"manualbase/internal/middleware"
	"manualbase/internal/models"
	"manualbase/internal/scan"
	"manualbase/internal/telemetry"
	"manualbase/internal/web"
)

// простой переписки и сканирования до удаления
const (
	chatIdle     = 2 * time.Hour
	scanIdle     = 5 * time.Minute
	janitorEvery = time.Minute
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	handler    http.Handler
	httpServer *http.Server

	scans    *scan.Registry
	chat     *chat.Service
	shutdown func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	if err := logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	}); err != nil {
		return err
	}
	log := logs.Logger

	/* 2) Трассировка */
	a.shutdown = telemetry.Setup(context.Background(), telemetry.Options{
		Endpoint:    a.cfg.Telemetry.Endpoint,
		Insecure:    a.cfg.Telemetry.Insecure,
		ServiceName: a.cfg.Telemetry.ServiceName,
	}, log)

	/* 3) DB (опционально, только история запросов) */
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("db open failed: %w", err)
		}
		a.db = d
		if err := a.db.AutoMigrate(&models.QueryRecord{}); err != nil {
			return fmt.Errorf("db migrate failed: %w", err)
		}
	}

	/* 4) Удалённый API и сервисы */
	api := backend.New(a.cfg.Backend.URL,
		backend.WithTimeout(a.cfg.Backend.Timeout),
		backend.WithLogger(log.WithField("component", "backend")),
	)
	queries := newQueryStore(a.db)
	a.chat = chat.New(api, queries, log.WithField("component", "chat"))
	a.scans = scan.NewRegistry(scan.ZXingDecoder{TryHarder: true}, log.WithField("component", "scan"))
	cookies := newCookieCodec(a.cfg)

	/* 5) Router + middleware */
	a.Router = mux.NewRouter()
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)
	// guard снаружи mux: Use не вызывается для несовпавших маршрутов
	a.handler = guard.Middleware(guard.DefaultPolicy(), cookies, log.WithField("component", "guard"))(a.Router)

	/* 6) Health */
	health.RegisterRoutesWithDeps(a.Router, a.db, api) // /healthz, /readyz

	/* 7) Страницы и API сканера */
	web.Attach(a.Router, web.Dependencies{
		API:            api,
		Catalog:        catalog.New(api, log.WithField("component", "catalog")),
		Chat:           a.chat,
		Scans:          a.scans,
		Queries:        queries,
		Cookies:        cookies,
		UI:             newUIStore(a.cfg),
		Limiter:        middleware.NewRateLimiter(a.cfg.RateLimit.AuthPerMinute, a.cfg.RateLimit.AuthBurst),
		MaxUploadBytes: a.cfg.Upload.MaxBytes,
		Log:            log,
	})

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.handler == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	// WriteTimeout покрывает и загрузку PDF, и ожидание ответа ассистента
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           otelhttp.NewHandler(a.handler, "manualbase"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go a.janitor(a.ctx)

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			a.cancel()
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	a.scans.CloseAll()
	if err := a.shutdown(ctx); err != nil {
		logs.Logger.Errorf("telemetry shutdown: %v", err)
	}

	select {
	case err := <-errc:
		return fmt.Errorf("http server error: %w", err)
	default:
		return nil
	}
}

// janitor убирает переписки и процессы сканирования брошенных вкладок.
func (a *App) janitor(ctx context.Context) {
	t := time.NewTicker(janitorEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.chat.Expire(chatIdle)
			a.scans.Expire(scanIdle)
		}
	}
}
