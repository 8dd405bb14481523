package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"

	adaptermiddleware "filetrack/internal/adapters/http/middleware"
	adapterlogger "filetrack/internal/adapters/logger"
	"filetrack/internal/application"
	"filetrack/internal/domain"
	"filetrack/internal/infrastructure/auth"
	"filetrack/internal/infrastructure/config"
	"filetrack/internal/infrastructure/dynamodb"
	"filetrack/internal/infrastructure/events"
	"filetrack/internal/infrastructure/kv"
	"filetrack/internal/infrastructure/store"
	httpiface "filetrack/internal/interfaces/http"
	"filetrack/internal/ports"
)

func openKV(ctx context.Context, cfg config.Config) (ports.KV, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return kv.NewMemory(), noop, nil
	case config.BackendFile:
		f, err := kv.NewFile(cfg.DataPath)
		return f, noop, err
	case config.BackendRedis:
		r, err := kv.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
		if err != nil {
			return nil, noop, err
		}
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case config.BackendDynamoDB:
		c, err := dynamodb.NewClient(ctx, cfg.Region, cfg.TableName, cfg.KeyPrefix)
		return c, noop, err
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("FILETRACK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		adapterlogger.New("error").Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	logger := adapterlogger.New(cfg.LogLevel)
	xray.Configure(xray.Config{LogLevel: "error"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(context.Background(), "filetrack stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *adapterlogger.SlogLogger) error {
	backend, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer closeKV()

	st, err := store.Open(ctx, backend, time.Now())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var publisher ports.EventPublisher = events.Nop{}
	if cfg.AMQPURL != "" {
		publisher = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
	}

	hasher := auth.BcryptHasher{}
	authz := application.NewAuthorizationService(st, logger)
	files := application.NewFileService(st, authz, publisher, logger, cfg.MaxAttachmentBytes)
	users := application.NewUserService(st, authz, hasher, logger)
	roles := application.NewRoleService(st, authz, logger)
	center := application.NewNotificationCenter(st, logger, cfg.NotificationTTL)
	sessions := application.NewSessionService(st, hasher, center, logger)

	// A session persisted by a previous run keeps receiving notifications.
	if _, err := sessions.Restore(ctx); err != nil && !errors.Is(err, domain.ErrNoSession) {
		logger.Warn(ctx, "restore session failed", "error", err)
	}

	poller := application.NewPoller(files, center, cfg.PollInterval, logger)
	poller.Start(ctx)
	defer poller.Stop()

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	mode, err := adaptermiddleware.ParseAuthMode(cfg.AuthMode)
	if err != nil {
		return err
	}
	authMiddleware, err := adaptermiddleware.AuthMiddleware(mode, issuer, sessions)
	if err != nil {
		return err
	}

	e := httpiface.NewRouter(httpiface.Handlers{
		Session:       httpiface.NewSessionHandler(sessions, issuer, logger),
		Files:         httpiface.NewFilesHandler(files, logger),
		Users:         httpiface.NewUsersHandler(users, authz, logger),
		Roles:         httpiface.NewRolesHandler(roles, authz, logger),
		Notifications: httpiface.NewNotificationsHandler(center),
	}, httpiface.Middleware{
		Auth:          authMiddleware,
		XRay:          adaptermiddleware.XRayMiddleware("filetrack-http"),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting http server", "port", cfg.Port, "backend", cfg.Backend, "auth_mode", cfg.AuthMode)
		errCh <- e.Start("127.0.0.1:" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, stdhttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
