package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YosriMlik/llm-wrapper/internal/config"
	"github.com/YosriMlik/llm-wrapper/internal/logger"
	"github.com/YosriMlik/llm-wrapper/internal/server"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	Long:  `Start the chat API server, the streaming relay and the web client host`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, level, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting llm-wrapper",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("default_model", cfg.Models.Default),
		zap.Int("models", len(cfg.Models.Available)),
	)

	if cfg.OpenRouter.APIKey == "" {
		log.Warn("OPENROUTER_API_KEY is not set, chat requests will fail until it is configured")
	} else {
		log.Info("OpenRouter API key is set", zap.String("key_prefix", maskAPIKey(cfg.OpenRouter.APIKey)))
	}
	if cfg.Security.APIKey != "" {
		log.Info("Chat API key is set", zap.String("key_prefix", maskAPIKey(cfg.Security.APIKey)))
	}

	watchLogLevel(log, level)

	opts := []server.Option{}
	if Version != "" && Version != "dev" {
		opts = append(opts, server.WithVersion(Version))
	}
	srv, err := server.New(cfg, log, opts...)
	if err != nil {
		log.Error("Failed to create server", zap.Error(err))
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
		return err
	case <-stop:
	}
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}

// watchLogLevel applies logging.level changes from the config file without a restart.
func watchLogLevel(log *zap.Logger, level zap.AtomicLevel) {
	file := viper.ConfigFileUsed()
	if file == "" {
		return
	}
	if _, err := os.Stat(file); err != nil {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		next := logger.ParseLevel(viper.GetString("logging.level"))
		if next == level.Level() {
			return
		}
		level.SetLevel(next)
		log.Info("Log level changed",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
			zap.Stringer("level", next))
	})
	viper.WatchConfig()

	log.Debug("Watching config file", zap.String("file", file))
}

// maskAPIKey returns a masked version of the API key for logging
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
