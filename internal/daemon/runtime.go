package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/api/credit/v1"
	"github.com/MarkoPoloResearchLab/franchise-credits/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/franchise-credits/internal/httpapi"
	"github.com/MarkoPoloResearchLab/franchise-credits/internal/notify"
	"github.com/MarkoPoloResearchLab/franchise-credits/internal/oplog"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/go-redis/redis/v8"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Runtime holds the wired services of one creditd process.
type Runtime struct {
	Ledger    *ledger.Service
	Lifecycle *lifecycle.Service

	logger     *zap.Logger
	dispatcher *notify.Dispatcher
	closers    []func()
}

// Open connects storage and side-effect adapters and builds both services.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, migrate bool) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opened, err := openStores(ctx, cfg, migrate)
	if err != nil {
		return nil, err
	}
	runtime := &Runtime{logger: logger, closers: []func(){opened.close}}

	sink, revoker, closeRedis := openRedis(ctx, cfg, logger)
	if closeRedis != nil {
		runtime.closers = append(runtime.closers, closeRedis)
	}
	dispatcherOptions := []notify.DispatcherOption{
		notify.WithWorkers(cfg.DispatcherWorkers),
		notify.WithQueueSize(cfg.DispatcherQueue),
	}
	if revoker != nil {
		dispatcherOptions = append(dispatcherOptions, notify.WithSessionRevoker(revoker))
	}
	runtime.dispatcher = notify.NewDispatcher(logger, sink, dispatcherOptions...)

	operationLog := oplog.New(logger)
	ledgerService, err := ledger.NewService(opened.ledger, unixNow,
		ledger.WithOperationLogger(operationLog),
		ledger.WithEventPublisher(runtime.dispatcher),
		ledger.WithConflictAttempts(cfg.ConflictRetries),
	)
	if err != nil {
		runtime.Close()
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	lifecycleService, err := lifecycle.NewService(opened.lifecycle, secondNow,
		lifecycle.WithTransitionLogger(operationLog),
		lifecycle.WithEventPublisher(runtime.dispatcher),
		lifecycle.WithSessionInvalidator(runtime.dispatcher),
		lifecycle.WithGracePeriod(cfg.GracePeriod),
		lifecycle.WithConflictAttempts(cfg.ConflictRetries),
	)
	if err != nil {
		runtime.Close()
		return nil, fmt.Errorf("lifecycle service init: %w", err)
	}
	runtime.Ledger = ledgerService
	runtime.Lifecycle = lifecycleService
	return runtime, nil
}

// Close drains queued side effects, then releases connections.
func (runtime *Runtime) Close() {
	if runtime.dispatcher != nil {
		runtime.dispatcher.Close()
	}
	for index := len(runtime.closers) - 1; index >= 0; index-- {
		runtime.closers[index]()
	}
	runtime.closers = nil
}

// openRedis falls back to the log sink when Redis is not configured or unreachable.
func openRedis(ctx context.Context, cfg Config, logger *zap.Logger) (notify.EventSink, notify.SessionRevoker, func()) {
	if cfg.RedisAddr == "" {
		return notify.NewLogSink(logger), nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, events go to the log", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return notify.NewLogSink(logger), nil, nil
	}
	logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	return notify.NewRedisSink(client, cfg.RedisChannel), notify.NewRedisSessionRevoker(client), func() { _ = client.Close() }
}

// Serve runs the gRPC and HTTP servers until ctx is cancelled or a server fails.
func Serve(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	runtime, err := Open(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer runtime.Close()

	grpcListener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPListenAddr)
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("http listen: %w", err)
	}
	return runtime.serve(ctx, cfg, grpcListener, httpListener)
}

func (runtime *Runtime) serve(ctx context.Context, cfg Config, grpcListener net.Listener, httpListener net.Listener) error {
	logger := runtime.logger
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	unlockCost, err := ledger.NewCost(cfg.ProfileUnlockCost)
	if err != nil {
		return err
	}
	httpConfig := httpapi.Config{AllowedOrigins: cfg.AllowedOrigins, UnlockCost: unlockCost}
	handler, err := httpapi.NewHandler(runtime.Ledger, runtime.Lifecycle, logger, httpConfig)
	if err != nil {
		return err
	}
	httpServer := &http.Server{Handler: httpapi.NewRouter(httpConfig, handler, validator)}

	grpcServer := grpc.NewServer()
	creditv1.RegisterCreditServiceServer(grpcServer, grpcserver.NewCreditServiceServer(runtime.Ledger, runtime.Lifecycle, logger))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", grpcListener.Addr().String()))
		errCh <- grpcServer.Serve(grpcListener)
	}()
	go func() {
		logger.Info("HTTP server starting", zap.String("listen_addr", httpListener.Addr().String()))
		errCh <- httpServer.Serve(httpListener)
	}()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runtime.sweepLoop(serveCtx, cfg.SweepInterval)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
	}
	cancel()
	<-sweepDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return serveErr
	}
	return nil
}

// sweepLoop runs SweepDeactivations every interval; a zero interval leaves sweeping to an
// external scheduler.
func (runtime *Runtime) sweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runtime.sweepOnce(ctx)
		}
	}
}

func (runtime *Runtime) sweepOnce(ctx context.Context) {
	result, err := runtime.Lifecycle.SweepDeactivations(ctx)
	if err != nil {
		runtime.logger.Warn("deactivation sweep failed", zap.Error(err))
		return
	}
	if len(result.Deactivated) > 0 {
		runtime.logger.Info("deactivation sweep finished", zap.Int("deactivated", len(result.Deactivated)))
	}
}

// Sweep runs one deactivation sweep and exits.
func Sweep(ctx context.Context, cfg Config, logger *zap.Logger) (lifecycle.SweepResult, error) {
	if err := cfg.Validate(); err != nil {
		return lifecycle.SweepResult{}, err
	}
	runtime, err := Open(ctx, cfg, logger, false)
	if err != nil {
		return lifecycle.SweepResult{}, err
	}
	defer runtime.Close()
	return runtime.Lifecycle.SweepDeactivations(ctx)
}

// Reconcile compares every cached balance with its transaction log and returns the
// accounts that disagree.
func Reconcile(ctx context.Context, cfg Config, logger *zap.Logger) ([]ledger.Reconciliation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runtime, err := Open(ctx, cfg, logger, false)
	if err != nil {
		return nil, err
	}
	defer runtime.Close()
	return runtime.Ledger.ReconcileAll(ctx)
}

// Migrate creates or updates the schema for the configured driver.
func Migrate(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	opened, err := openStores(ctx, cfg, true)
	if err != nil {
		return err
	}
	opened.close()
	if logger != nil {
		logger.Info("schema migrated", zap.String("store_driver", cfg.StoreDriver))
	}
	return nil
}

func unixNow() int64 {
	return time.Now().UTC().Unix()
}

func secondNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
