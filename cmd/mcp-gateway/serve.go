package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/null-runner/mcp-gateway/pkg/dispatcher"
	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/notifier"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/stateloader"
	"github.com/null-runner/mcp-gateway/pkg/telemetry"
)

type serveOptions struct {
	configFile   string
	sqliteFile   string
	listenAddr   string
	logFilePath  string
	watchFile    bool
	sessionRedis string
	pidFile      string
	metricsEvery time.Duration
}

func serveCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP front door",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configFile, "config", "gateway.yaml", "path to the tenants/configs YAML file")
	cmd.Flags().StringVar(&opts.sqliteFile, "config-db", "", "path to a SQLite tenants/configs database (overrides --config)")
	cmd.Flags().StringVar(&opts.listenAddr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "also write logs to this file")
	cmd.Flags().BoolVar(&opts.watchFile, "watch", true, "rebuild on every config file write (YAML source only)")
	cmd.Flags().StringVar(&opts.sessionRedis, "session-redis-addr", "", "Redis address for session storage (empty: in-memory)")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "write the process id here, for a peer's signal notifier to target")
	cmd.Flags().DurationVar(&opts.metricsEvery, "metrics-flush-interval", 30*time.Second, "how often to force-flush the metric reader")

	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	if opts.logFilePath != "" {
		logFile, err := os.OpenFile(opts.logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", opts.logFilePath, err)
		}
		defer logFile.Close()
		log.SetLogWriter(io.MultiWriter(os.Stderr, logFile))
	}

	telemetry.Init()

	if opts.pidFile != "" {
		if err := notifier.WritePIDFile(opts.pidFile); err != nil {
			return fmt.Errorf("writing pid file: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go telemetry.PeriodicFlush(ctx, opts.metricsEvery)

	var redisClient *redis.Client
	if opts.sessionRedis != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: opts.sessionRedis})
		defer redisClient.Close()
	}

	notify, err := notifier.FromEnv(redisClient)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}
	if notify != nil {
		defer notify.Close()
	}

	source, closeSource, err := openSource(opts.configFile, opts.sqliteFile)
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	loader := stateloader.New(source, nil, notify)

	if err := loader.Rebuild(ctx); err != nil {
		return fmt.Errorf("initial state build: %w", err)
	}

	if opts.watchFile && opts.sqliteFile == "" {
		if watchable, ok := source.(watcher); ok {
			if err := watchable.Watch(ctx, func() {
				if err := loader.Rebuild(ctx); err != nil {
					log.Warnf(nil, "config watch: rebuild failed: %v", err)
				}
			}); err != nil {
				return fmt.Errorf("watching config file: %w", err)
			}
		}
	}

	go loader.WatchNotifier(ctx)

	var sessions session.Store
	if redisClient != nil {
		store := session.NewRedisStore(redisClient, "mcp_gateway_sessions", session.DefaultTTL)
		defer store.Close()
		sessions = store
	} else {
		sessions = session.NewMemoryStore()
	}

	d := dispatcher.New(loader, sessions)

	// Listen as early as possible to not lose client connections while
	// the rest of startup runs.
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", opts.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.listenAddr, err)
	}

	srv := &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logf("mcp-gateway listening on %s", opts.listenAddr)
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		shutdownErr := srv.Shutdown(shutdownCtx)
		drainSessions(sessions)
		return shutdownErr
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// drainSessions closes every live SSE/Streamable session so an
// in-flight client sees its stream end cleanly instead of the
// connection simply dropping when the listener closes.
func drainSessions(store session.Store) {
	sessions, err := store.List()
	if err != nil {
		log.Warnf(nil, "shutdown: listing sessions to drain: %v", err)
		return
	}
	for _, sess := range sessions {
		if err := store.Unregister(sess.Prefix(), sess.ID()); err != nil {
			log.Warnf(log.Extras{log.F("session", sess.ID())}, "shutdown: unregistering session: %v", err)
		}
	}
	if len(sessions) > 0 {
		log.Logf("shutdown: drained %d live session(s)", len(sessions))
	}
}
