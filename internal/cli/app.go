// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Builds the component graph every command runs on.

package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/localtalk/internal/config"
	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/logging"
	"github.com/jeranaias/localtalk/internal/monitor"
	"github.com/jeranaias/localtalk/internal/oaicompat"
	"github.com/jeranaias/localtalk/internal/ollama"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/speech"
	"github.com/jeranaias/localtalk/internal/telemetry"
)

// App is one wired conversation: engine, gateway, monitor, orchestrator
// and input arbiter.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Gateway *gateway.Gateway
	Monitor *monitor.Monitor
	Conv    *orchestrator.Orchestrator
	Voice   *speech.Arbiter

	// VoiceChanges receives a value (coalesced) after each voice state change.
	VoiceChanges chan struct{}

	// Ollama is set for the ollama backend, for commands that list models.
	Ollama *ollama.Client

	engineClose func() error
	tracing     *telemetry.Provider

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

type appOptions struct {
	// logToFile sends logs to the default log file unless the config names
	// one. Full-screen and line-oriented chat use it.
	logToFile bool
	// engine replaces the configured backend.
	engine engine.Engine
}

// LoadConfig loads the config file (or args.ConfigPath) and applies the
// command-line overrides. The result is validated.
func LoadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil {
			// Defaults were returned; the broken file is reported, not fatal.
			fmt.Fprintf(os.Stderr, "%s %v\n", WarningStyle.Render("[!]"), err)
		}
	}

	applyArgs(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyArgs copies command-line flags over cfg.
func applyArgs(cfg *config.Config, args Args) {
	if args.Model != "" {
		cfg.Engine.Model = args.Model
	}
	if args.Backend != "" {
		cfg.Engine.Backend = args.Backend
	}
	if args.TranscriptFile != "" {
		cfg.Speech.TranscriptFile = args.TranscriptFile
		cfg.Speech.Enabled = true
	}
	if args.Voice {
		cfg.Speech.Enabled = true
	}
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	} else if args.Quiet {
		cfg.Logging.Level = "error"
	}
}

// NewEngine builds the engine adapter the config selects. The none backend
// returns a nil engine, which the gateway reports as not-available.
func NewEngine(cfg *config.Config, logger *zap.Logger) (engine.Engine, *ollama.Client, func() error, error) {
	switch cfg.Engine.Backend {
	case config.BackendOllama:
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Engine.OllamaURL,
			Timeout:      cfg.Timeout(),
			DefaultModel: cfg.Engine.Model,
		})
		e := ollama.NewEngine(client, cfg.Engine.Model, ollama.WithLogger(logger.Named("ollama")))
		return e, client, e.Close, nil

	case config.BackendOpenAI:
		e, err := oaicompat.New(oaicompat.Config{
			BaseURL: cfg.Engine.OpenAIURL,
			Token:   cfg.Engine.OpenAIKey,
			Model:   cfg.Engine.Model,
			Timeout: cfg.Timeout(),
		}, oaicompat.WithLogger(logger.Named("openai")))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create openai engine: %w", err)
		}
		return e, nil, nil, nil

	case config.BackendNone:
		return nil, nil, nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", cfg.Engine.Backend)
	}
}

// NewApp wires a conversation from cfg.
func NewApp(cfg *config.Config, opts appOptions) (*App, error) {
	fallback := ""
	if opts.logToFile {
		if p, err := config.DefaultLogPath(); err == nil {
			fallback = p
		}
	}
	logger, err := logging.New(cfg.Logging, fallback)
	if err != nil {
		return nil, err
	}

	tracing, err := telemetry.Setup(context.Background(), cfg.Telemetry, Version, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	var (
		eng         engine.Engine
		client      *ollama.Client
		engineClose func() error
	)
	if opts.engine != nil {
		eng = opts.engine
	} else {
		eng, client, engineClose, err = NewEngine(cfg, logger)
		if err != nil {
			_ = tracing.Shutdown(context.Background())
			_ = logger.Sync()
			return nil, err
		}
	}

	lang := cfg.Engine.Language
	gw := gateway.New(eng,
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithStreaming(cfg.Engine.Streaming),
		gateway.WithTracer(tracing.Tracer("github.com/jeranaias/localtalk/internal/gateway")),
	)

	mon := monitor.New(gw,
		monitor.WithInterval(cfg.PollInterval()),
		monitor.WithLanguage(lang),
		monitor.WithLogger(logger.Named("monitor")),
	)

	conv := orchestrator.New(gw, mon,
		orchestrator.WithConfig(orchestrator.Config{
			Language:         lang,
			PromptHistory:    cfg.Conversation.PromptHistory,
			HistoryKeep:      cfg.Conversation.HistoryKeep,
			SummarizeEvery:   cfg.Conversation.SummarizeEvery,
			SentDelay:        cfg.SentDelay(),
			StructuredOutput: cfg.Conversation.StructuredOutput,
			Temperature:      cfg.Conversation.Temperature,
		}),
		orchestrator.WithSummarizer(orchestrator.NewLLMSummarizer(gw, lang, cfg.Conversation.StructuredOutput)),
		orchestrator.WithLogger(logger.Named("orchestrator")),
	)

	voiceChanges := make(chan struct{}, 1)
	var rec speech.Recognizer
	if cfg.Speech.TranscriptFile != "" {
		rec = speech.NewFileRecognizer(cfg.Speech.TranscriptFile, logger.Named("transcript"))
	}
	arb := speech.NewArbiter(rec, conv,
		speech.WithLogger(logger.Named("speech")),
		speech.WithLocale(cfg.Speech.Locale),
		speech.WithRestartLimit(rate.Limit(cfg.Speech.RestartPerSec), cfg.Speech.RestartBurst),
		speech.WithOnChange(func() {
			select {
			case voiceChanges <- struct{}{}:
			default:
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:       cfg,
		Logger:       logger,
		Gateway:      gw,
		Monitor:      mon,
		Conv:         conv,
		Voice:        arb,
		VoiceChanges: voiceChanges,
		Ollama:       client,
		engineClose:  engineClose,
		tracing:      tracing,
		ctx:          ctx,
		cancel:       cancel,
	}

	app.wg.Add(1)
	go app.followAvailability(ctx)

	logger.Info("conversation ready",
		zap.String("backend", cfg.Engine.Backend),
		zap.String("model", cfg.Engine.Model),
		zap.Bool("streaming", gw.SupportsStreaming()),
		zap.Bool("voice", rec != nil),
		zap.Bool("tracing", tracing.Enabled()),
	)
	return app, nil
}

// followAvailability keeps the arbiter's view of AI availability in step
// with the orchestrator. Voice input only listens while the AI is usable.
func (a *App) followAvailability(ctx context.Context) {
	defer a.wg.Done()

	changes, unsubscribe := a.Conv.Subscribe()
	defer unsubscribe()

	last := a.Conv.Available()
	a.Voice.SetAIAvailable(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if now := a.Conv.Available(); now != last {
				last = now
				a.Voice.SetAIAvailable(now)
			}
		}
	}
}

// Start runs the initial availability check and, when configured, turns
// voice input on. It blocks until the check finishes.
func (a *App) Start(ctx context.Context) {
	a.Conv.Start(ctx)
	if a.Config.Speech.Enabled {
		a.Voice.SetVoiceEnabled(true)
	}
}

// StartAsync runs Start in the background. Close cancels and waits for it.
func (a *App) StartAsync() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Start(a.ctx)
	}()
}

// Close stops voice input, abandons any turn, stops polling and releases
// the engine. It is safe to call more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		a.wg.Wait()
		if cerr := a.Voice.Close(); cerr != nil {
			err = cerr
		}
		if cerr := a.Conv.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.Monitor.Stop()
		if a.engineClose != nil {
			if cerr := a.engineClose(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if cerr := a.tracing.Shutdown(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
		_ = a.Logger.Sync()
	})
	return err
}

// Endpoint returns the engine URL for display.
func (a *App) Endpoint() string {
	switch a.Config.Engine.Backend {
	case config.BackendOllama:
		return a.Config.Engine.OllamaURL
	case config.BackendOpenAI:
		return a.Config.Engine.OpenAIURL
	default:
		return ""
	}
}
