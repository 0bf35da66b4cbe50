// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Local HTTP API.
//
// Command: serve
//
// Examples:
//
//	localtalk serve
//	localtalk serve --addr 127.0.0.1:9090
//	localtalk serve --transcript /tmp/transcript.txt --voice

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/server"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// HandleServe handles the "serve" command.
func HandleServe(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	server.Version = Version
	srv := server.New(app.Conv,
		server.WithAddr(cfg.Server.Addr),
		server.WithVoice(app.Voice),
		server.WithLogger(app.Logger.Named("server")),
		server.WithRateLimiter(server.NewRateLimiter(cfg.Server.RatePerSec, cfg.Server.RateBurst)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.StartAsync()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !args.Quiet {
		fmt.Fprintf(os.Stderr, "%s listening on http://%s\n", SuccessStyle.Render("[OK]"), srv.Addr())
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return NewCommandError("serve", "listen", "server stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
