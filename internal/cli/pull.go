// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// pull.go - Start the model download and follow it to the end.
//
// Command: pull
// Aliases: download
//
// The download belongs to this process: interrupting the command stops
// following it, and the engine adapter cancels a pull it started.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/localtalk/internal/model"
)

// HandlePull handles the "pull" command.
func HandlePull(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Pull(ctx, app, os.Stdout, IsStdoutTTY() && !args.Quiet)
}

// Pull checks availability, starts the download when the model is
// downloadable and prints status updates until the model is ready or the
// download ends in another state. live redraws a single progress line.
func Pull(ctx context.Context, app *App, out io.Writer, live bool) error {
	// Updates coalesce; the loop always reads the latest status.
	changed := make(chan struct{}, 1)
	app.Monitor.OnChange(func(model.ModelStatus) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	st := app.Conv.CheckAvailability(ctx)
	switch st.Status {
	case model.StatusReady:
		fmt.Fprintln(out, RenderModelStatus(st))
		return nil
	case model.StatusDownloadable:
		res := app.Conv.BeginModelDownload(ctx)
		if !res.Started {
			return NewCommandError("pull", "download", "engine refused the download", res.Err)
		}
	case model.StatusDownloading:
		// Already running; just follow it.
	default:
		fmt.Fprintln(out, RenderModelStatus(st))
		return NewCommandError("pull", "check", st.Message, nil)
	}

	last := st
	for {
		select {
		case <-ctx.Done():
			if live {
				fmt.Fprintln(out)
			}
			return ctx.Err()
		case <-changed:
			st = app.Monitor.Status()
		}

		switch st.Status {
		case model.StatusChecking:
			continue
		case model.StatusDownloading:
			if live {
				fmt.Fprintf(out, "\r%s", RenderModelStatus(st))
			} else if progressChanged(last, st) {
				fmt.Fprintln(out, RenderModelStatus(st))
			}
			last = st
			continue
		}

		if live {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, RenderModelStatus(st))
		if st.Status == model.StatusReady {
			return nil
		}
		return NewCommandError("pull", "download", st.Message, nil)
	}
}

// progressChanged reports whether a downloading status moved by at least
// one percent, so piped output is not flooded.
func progressChanged(prev, next model.ModelStatus) bool {
	if next.Progress == nil {
		return prev.Status != next.Status
	}
	if prev.Progress == nil {
		return true
	}
	return int(*next.Progress*100) != int(*prev.Progress*100)
}
