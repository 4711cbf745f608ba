package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/agentwatch/internal/config"
	"github.com/user/agentwatch/internal/delivery"
	"github.com/user/agentwatch/internal/ingest"
	"github.com/user/agentwatch/internal/scheduler"
	"github.com/user/agentwatch/internal/server"
	"github.com/user/agentwatch/internal/state"
)

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event collection server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(pidPath string) error {
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	restart, err := serve(cfg)
	if err != nil {
		return err
	}
	if !restart {
		return nil
	}

	// Everything is closed by now; replace this process with a fresh copy.
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	slog.Info("restarting", "exec", execPath)
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec: %w", err)
	}
	return nil
}

// serve runs the server until SIGINT or SIGTERM, or SIGHUP which asks for a
// restart. All resources are released before it returns.
func serve(cfg *config.Config) (restart bool, err error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return false, fmt.Errorf("create data dir: %w", err)
	}

	// Signals must be caught before the PID file is written.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	store, err := state.Open(cfg.DatabasePath())
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			slog.Error("close event store", "error", cerr)
		}
	}()

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return false, fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		ln.Close()
		return false, err
	}
	defer os.Remove(pidPath)

	registry := delivery.NewRegistry()
	svc := ingest.NewService(store, registry, ingest.WithSnapshotLimit(cfg.Stream.SnapshotLimit))
	srv := server.NewServer(svc, server.Options{
		UIDir:          cfg.HTTP.UIDir,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		SendBuffer:     cfg.Stream.SendBuffer,
		PingInterval:   cfg.PingInterval(),
		MaxSubscribers: cfg.Stream.MaxSubscribers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(
		scheduler.CheckpointJob(cfg.Maintenance.CheckpointSchedule, store),
		scheduler.StatsJob(cfg.Maintenance.StatsSchedule, svc),
	)
	if err := sched.Start(ctx); err != nil {
		ln.Close()
		return false, fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(srv.CloseStreams)

	slog.Info("agentwatch started",
		"listen", ln.Addr().String(),
		"db_path", cfg.DatabasePath(),
		"pid_file", pidPath,
		"snapshot_limit", cfg.Stream.SnapshotLimit,
		"ui_dir", cfg.HTTP.UIDir,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				restart = true
			} else {
				slog.Info("shutting down", "signal", sig)
			}
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return false, err
	}
	return restart, nil
}
