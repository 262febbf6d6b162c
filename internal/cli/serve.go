// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.String(keyHost, "", "listen host (default 127.0.0.1)")
	f.Int(keyPort, 0, "listen port (default 3000)")
	f.Bool(keyWatch, false, "broadcast edits made outside the editor")
	for _, key := range []string{keyHost, keyPort, keyWatch} {
		_ = v.BindPFlag(key, f.Lookup(key))
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, logger, err := setup(v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return NewCommandError("serve", "load features", err)
	}
	srv, watcher := a.newServer()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("WATCH_DISABLED", zap.Error(err))
			watcher = nil
		} else {
			defer watcher.Close()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("MINDMAP_READY",
		zap.String("url", "http://"+srv.Addr()),
		zap.String("root", a.store.Root()),
		zap.Bool("watch", watcher != nil),
		zap.String("version", Version),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return NewCommandError("serve", "listen", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("SHUTDOWN_INCOMPLETE", zap.Error(err))
	}
	return <-errCh
}
