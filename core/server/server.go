package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitlist-engine/core/cache"
	"waitlist-engine/core/config"
	"waitlist-engine/core/database"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/middleware"
	"waitlist-engine/core/scheduler"
	"waitlist-engine/modules/calendar"
	"waitlist-engine/modules/notification"
	"waitlist-engine/modules/slot"
	"waitlist-engine/modules/waitlist"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// Run wires every module, starts the HTTP server, the scheduler and the
// delivery queue, and blocks until an interrupt drains them all.
func Run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Server.LogLevel)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return err
	}

	c, err := cache.NewCache(cfg.Redis)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	e.GET("/api/v1/health", func(ctx echo.Context) error {
		if err := db.SQLx().PingContext(ctx.Request().Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	mw := middleware.NewMiddleware(c)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	dispatcher, worker := notification.Init(db, queueClient, cfg)
	connRepo, gateway, refresher := calendar.Init(e, db, mw, cfg.Engine)
	slotRepo, watcher := slot.Init(e, db, mw, connRepo, gateway, refresher, cfg.Engine)
	matcher := waitlist.Init(e, db, mw, c, slotRepo, dispatcher, cfg.Engine)
	watcher.SetMatcher(matcher)

	sched := scheduler.New(cfg.Engine.Tick(), scheduler.SystemClock())
	sched.Register(watcher)
	sched.Register(matcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)

	queueServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Engine.Workers,
		Queues:      map[string]int{"notifications": 1},
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)
	if err := queueServer.Start(mux); err != nil {
		return fmt.Errorf("start queue server: %w", err)
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Server:Run:Listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Server:Run:HTTP", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Server:Run:ShuttingDown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server:Run:Shutdown", "error", err)
	}
	queueServer.Shutdown()
	return nil
}
