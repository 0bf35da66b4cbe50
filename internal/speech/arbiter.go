// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/localtalk/internal/util"
)

// ErrVoiceActive is returned by SubmitText while voice input is live.
var ErrVoiceActive = errors.New("voice input is active")

// Source identifies which input channel is live.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// Target receives committed input and the interim draft.
// orchestrator.Orchestrator implements it.
type Target interface {
	SubmitTurnAsync(text string) error
	SetSpeechDraft(text string)
	ClearSpeechDraft()
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Arbiter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLocale overrides DefaultLocale.
func WithLocale(locale string) Option {
	return func(a *Arbiter) {
		if locale != "" {
			a.locale = locale
		}
	}
}

// WithRestartLimit throttles recognizer restarts after a natural end.
func WithRestartLimit(every rate.Limit, burst int) Option {
	return func(a *Arbiter) { a.limiter = rate.NewLimiter(every, burst) }
}

// WithOnChange registers fn to run after voice state changes.
func WithOnChange(fn func()) Option {
	return func(a *Arbiter) { a.onChange = fn }
}

// Arbiter merges typed text and speech transcripts into one submission
// channel. Only one source is live at a time: while voice input runs,
// typed submissions are refused.
type Arbiter struct {
	rec      Recognizer
	target   Target
	logger   *zap.Logger
	locale   string
	limiter  *rate.Limiter
	onChange func()

	mu           sync.Mutex
	voiceEnabled bool
	aiAvailable  bool
	recognizing  bool
	closed       bool
	gen          uint64
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewArbiter creates an Arbiter. rec may be nil on hosts without speech
// support; voice mode then cannot be enabled.
func NewArbiter(rec Recognizer, target Target, opts ...Option) *Arbiter {
	a := &Arbiter{
		rec:     rec,
		target:  target,
		logger:  zap.NewNop(),
		locale:  DefaultLocale,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetVoiceEnabled is the user's voice toggle.
func (a *Arbiter) SetVoiceEnabled(on bool) {
	a.mu.Lock()
	a.voiceEnabled = on
	a.mu.Unlock()
	a.reconcile()
}

// SetAIAvailable gates voice input. Listening stops while the AI is
// unavailable, whatever the toggle says.
func (a *Arbiter) SetAIAvailable(on bool) {
	a.mu.Lock()
	a.aiAvailable = on
	a.mu.Unlock()
	a.reconcile()
}

// VoiceEnabled reports the toggle state.
func (a *Arbiter) VoiceEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.voiceEnabled
}

// Recognizing reports whether a recognition session is running.
func (a *Arbiter) Recognizing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recognizing
}

// ActiveSource reports which input is live.
func (a *Arbiter) ActiveSource() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return SourceVoice
	}
	return SourceText
}

// SubmitText submits typed input.
func (a *Arbiter) SubmitText(text string) error {
	if a.ActiveSource() == SourceVoice {
		return ErrVoiceActive
	}
	return a.target.SubmitTurnAsync(text)
}

// Close stops listening and waits for the listen loop to exit.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.reconcile()
	a.wg.Wait()
	return nil
}

// reconcile starts or stops the listen loop to match the toggles.
func (a *Arbiter) reconcile() {
	a.mu.Lock()
	want := a.voiceEnabled && a.aiAvailable && !a.closed
	switch {
	case want && a.cancel == nil:
		if a.rec == nil {
			a.voiceEnabled = false
			a.mu.Unlock()
			a.logger.Info("voice input unavailable: no recognizer")
			a.changed()
			return
		}
		a.gen++
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go a.loop(ctx, a.gen)
		a.mu.Unlock()
		a.logger.Debug("voice input started", zap.String("locale", a.locale))

	case !want && a.cancel != nil:
		a.cancel()
		a.cancel = nil
		a.recognizing = false
		a.mu.Unlock()
		a.target.ClearSpeechDraft()
		a.logger.Debug("voice input stopped")

	default:
		a.mu.Unlock()
	}
	a.changed()
}

func (a *Arbiter) loop(ctx context.Context, gen uint64) {
	defer a.wg.Done()

	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		a.setRecognizing(gen, true)
		err := a.rec.Listen(ctx, Config{Locale: a.locale}, func(ev Event) {
			a.handle(ctx, ev)
		})
		a.setRecognizing(gen, false)

		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil:
			a.logger.Debug("recognizer ended, restarting")
		case errors.Is(err, ErrUnsupported):
			a.logger.Info("speech recognition not supported, voice input disabled")
			a.disable(gen)
			return
		default:
			a.logger.Warn("speech recognition failed, voice input disabled", zap.Error(err))
			a.disable(gen)
			return
		}
	}
}

// handle routes one event: interim text goes to the draft, finals are
// submitted in order.
func (a *Arbiter) handle(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	finals, interim := ev.split()
	for _, text := range finals {
		a.target.ClearSpeechDraft()
		if err := a.target.SubmitTurnAsync(text); err != nil {
			a.logger.Info("speech transcript dropped",
				zap.String("transcript", util.TruncateRunes(text, 40)), zap.Error(err))
		}
	}
	if interim != "" {
		a.target.SetSpeechDraft(interim)
	}
}

func (a *Arbiter) setRecognizing(gen uint64, on bool) {
	a.mu.Lock()
	if a.gen != gen || a.cancel == nil {
		a.mu.Unlock()
		return
	}
	a.recognizing = on
	a.mu.Unlock()
	a.changed()
}

// disable turns voice mode off after a recognizer failure. Text input is
// unaffected.
func (a *Arbiter) disable(gen uint64) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.voiceEnabled = false
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.recognizing = false
	a.mu.Unlock()
	a.target.ClearSpeechDraft()
	a.changed()
}

func (a *Arbiter) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}
