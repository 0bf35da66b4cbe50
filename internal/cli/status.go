// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Engine and model availability.
//
// Command: status
// Aliases: s
//
// Examples:
//
//	localtalk status
//	localtalk status --json
//	localtalk status --backend openai --model llama3

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/model"
)

// statusTimeout bounds the whole status check.
const statusTimeout = 30 * time.Second

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	data := CollectStatus(ctx, app)
	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}
	printStatusData(data)
	if data.Status != string(model.StatusReady) && data.Status != string(model.StatusDownloading) {
		// Text output exits non-zero unless the model is usable.
		return NewCommandError("status", "check", data.Message, nil)
	}
	return nil
}

// CollectStatus runs one availability check without starting the monitor.
func CollectStatus(ctx context.Context, app *App) StatusData {
	cfg := app.Config
	st := app.Gateway.CheckStatus(ctx, cfg.Engine.Language)

	data := StatusData{
		Backend:   cfg.Engine.Backend,
		Model:     cfg.Engine.Model,
		Endpoint:  app.Endpoint(),
		Language:  cfg.Engine.Language,
		Status:    st.Status.String(),
		Message:   st.Message,
		Progress:  st.Progress,
		Streaming: app.Gateway.SupportsStreaming(),
		Voice:     cfg.Speech.TranscriptFile != "",
	}

	if app.Ollama != nil {
		models, err := app.Ollama.ListModels(ctx)
		if err != nil {
			app.Logger.Debug("list models failed", zap.Error(err))
		}
		for _, m := range models {
			data.Installed = append(data.Installed, m.Name)
		}
	}
	return data
}

func printStatusData(d StatusData) {
	fmt.Println(TitleStyle.Render("localtalk status"))
	fmt.Println(RenderSeparator(50))
	fmt.Printf("%s %s\n", RenderLabel("Backend"), ValueStyle.Render(d.Backend))
	if d.Endpoint != "" {
		fmt.Printf("%s %s\n", RenderLabel("Endpoint"), ValueStyle.Render(d.Endpoint))
	}
	fmt.Printf("%s %s\n", RenderLabel("Model"), ValueStyle.Render(d.Model))
	fmt.Printf("%s %s\n", RenderLabel("Language"), ValueStyle.Render(d.Language))
	fmt.Printf("%s %t\n", RenderLabel("Streaming"), d.Streaming)
	fmt.Printf("%s %t\n", RenderLabel("Voice"), d.Voice)

	st := model.ModelStatus{Status: model.StatusKind(d.Status), Message: d.Message, Progress: d.Progress}
	fmt.Printf("%s %s\n", RenderLabel("Status"), RenderModelStatus(st))

	if len(d.Installed) > 0 {
		fmt.Printf("%s\n", RenderLabel("Installed"))
		for _, name := range d.Installed {
			marker := "  "
			if name == d.Model {
				marker = SuccessStyle.Render("* ")
			}
			fmt.Fprintf(os.Stdout, "  %s%s\n", marker, name)
		}
	}
}
