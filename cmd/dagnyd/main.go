package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/command"
	"github.com/droter/dagny-ros/internal/config"
	"github.com/droter/dagny-ros/internal/diag"
	"github.com/droter/dagny-ros/internal/goals"
	"github.com/droter/dagny-ros/internal/link"
	"github.com/droter/dagny-ros/internal/logging"
	"github.com/droter/dagny-ros/internal/telemetry"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/transport"
	"github.com/droter/dagny-ros/internal/wire"
)

const metricsShutdownTimeout = 2 * time.Second

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run dagnyd", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "dagnyd.json", "path to config file")
	serialPort := flag.String("port", "", "serial device, overrides config")
	serialBaud := flag.Int("baud", 0, "serial baud rate, overrides config")
	metricsAddr := flag.String("metrics", "", "metrics listen address, overrides config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*serialPort) != "" {
		cfg.Serial.Port = strings.TrimSpace(*serialPort)
	}
	if *serialBaud > 0 {
		cfg.Serial.Baud = *serialBaud
	}
	if strings.TrimSpace(*metricsAddr) != "" {
		cfg.Metrics.Addr = strings.TrimSpace(*metricsAddr)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, "dagnyd.log"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("main")
	logger.Info("starting dagnyd", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)

	db, err := goals.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open goal store: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close goal store", "error", closeErr)
		}
	}()
	repo := goals.NewRepo(db)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	writer := goals.NewWriterQueue(logMgr.Logger("goals"), 64)
	writer.Start(ctx)
	goals.StartSync(ctx, b, writer, repo, logMgr.Logger("goals"))

	monitor := diag.NewMonitor(b, logMgr.Logger("diag"))
	monitor.Start(ctx, cfg.HealthInterval())

	dispatcher := wire.NewDispatcher(logMgr.Logger("wire"))
	telemetry.Register(dispatcher, b, monitor, logMgr.Logger("telemetry"))

	port, err := transport.Open(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", cfg.Serial.Port, err)
	}
	defer func() {
		if closeErr := port.Close(); closeErr != nil {
			logger.Warn("close serial port", "error", closeErr)
		}
	}()

	if cfg.Metrics.Addr != "" {
		startMetricsServer(ctx, cfg.Metrics.Addr, logMgr.Logger("metrics"))
	}

	watchShutdownRequests(ctx, b, cfg.System.ShutdownCommand, stop, logger)

	svc := link.New(link.Config{
		Port:           port,
		Bus:            b,
		Outbox:         command.NewOutbox(logMgr.Logger("command")),
		Dispatcher:     dispatcher,
		Monitor:        monitor,
		Logger:         logMgr.Logger("link"),
		TickPeriod:     cfg.TickPeriod(),
		Heartbeat:      cfg.Heartbeat(),
		CommandTimeout: cfg.CommandTimeout(),
	})
	defer svc.Close()

	return svc.Run(ctx)
}

func startMetricsServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", diag.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// watchShutdownRequests runs the configured host shutdown command when the
// robot sends its power-off sentinel, then stops the daemon.
func watchShutdownRequests(ctx context.Context, b bus.MessageBus, shutdownCmd string, stop func(), logger *slog.Logger) {
	sub := b.Subscribe(topics.SystemShutdown)
	go func() {
		defer b.Unsubscribe(sub, topics.SystemShutdown)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-sub:
				req, ok := m.(topics.ShutdownRequest)
				if !ok {
					continue
				}
				logger.Warn("robot requested host shutdown", "stamp", req.Stamp)
				if shutdownCmd != "" {
					// #nosec G204 -- command comes from the operator's config file.
					out, err := exec.CommandContext(ctx, "sh", "-c", shutdownCmd).CombinedOutput()
					if err != nil {
						logger.Error("shutdown command failed", "error", err, "output", string(out))
					}
				}
				stop()
				return
			}
		}
	}()
}
