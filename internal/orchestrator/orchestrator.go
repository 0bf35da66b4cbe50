// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator runs the conversation: it owns the rendered message
// list, the model-facing history, the learned context and the rolling
// summary, and it executes one AI turn at a time.
//
// Presentation layers read state through Snapshot and learn about changes
// through Subscribe; they mutate state only through the action methods.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/schedule"
)

// Rejections from SubmitTurn. A rejected call changes nothing.
var (
	ErrEmptyInput   = errors.New("empty input")
	ErrTurnInFlight = errors.New("a turn is already in progress")
	ErrUnavailable  = errors.New("AI is not available")
	ErrClosed       = errors.New("orchestrator closed")
)

// LogCommand dumps history as a system message without calling the model.
const LogCommand = "/log"

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Gateway is the engine access the orchestrator needs.
type Gateway interface {
	SupportsStreaming() bool
	Prompt(ctx context.Context, cfg engine.SessionConfig, text string) (string, error)
	PromptStream(ctx context.Context, cfg engine.SessionConfig, text string, onChunk func(string)) (string, error)
}

// Availability owns the model status. monitor.Monitor implements it.
type Availability interface {
	Start(ctx context.Context) model.ModelStatus
	Status() model.ModelStatus
	Refresh(ctx context.Context) model.ModelStatus
	BeginDownload(ctx context.Context) gateway.DownloadResult
	OnChange(fn func(model.ModelStatus))
	Stop()
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config tunes turn handling.
type Config struct {
	// Language is passed to every session.
	Language string
	// PromptHistory is how many earlier history entries go into a prompt.
	PromptHistory int
	// HistoryKeep is the history length left after summarization.
	HistoryKeep int
	// SummarizeEvery triggers summarization after every N AI turns.
	SummarizeEvery int
	// SentDelay is when the ephemeral indicator moves from received to sent.
	SentDelay time.Duration
	// StructuredOutput sends the response JSON schema with each prompt.
	StructuredOutput bool
	// Temperature overrides sampling temperature when > 0.
	Temperature float64
}

// DefaultConfig returns the standard turn settings.
func DefaultConfig() Config {
	return Config{
		Language:         "ja",
		PromptHistory:    10,
		HistoryKeep:      8,
		SummarizeEvery:   4,
		SentDelay:        time.Second,
		StructuredOutput: true,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the turn settings. Empty and non-positive fields
// keep their defaults; StructuredOutput is taken as given.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) {
		d := DefaultConfig()
		if c.Language == "" {
			c.Language = d.Language
		}
		if c.PromptHistory <= 0 {
			c.PromptHistory = d.PromptHistory
		}
		if c.HistoryKeep <= 0 {
			c.HistoryKeep = d.HistoryKeep
		}
		if c.SummarizeEvery <= 0 {
			c.SummarizeEvery = d.SummarizeEvery
		}
		if c.SentDelay <= 0 {
			c.SentDelay = d.SentDelay
		}
		o.cfg = c
	}
}

// WithSummarizer sets the summarizer. Without one, LLMSummarizer over the
// gateway is used.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// WithClock sets the clock for the ephemeral stage timer.
func WithClock(c schedule.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// =============================================================================
// STATE
// =============================================================================

// State is a point-in-time copy of everything a view renders.
type State struct {
	Messages    []*model.Message          `json:"messages"`
	Input       string                    `json:"input"`
	SpeechDraft string                    `json:"speechDraft"`
	Loading     bool                      `json:"isLoading"`
	AIAvailable *bool                     `json:"aiAvailable"`
	ModelStatus model.ModelStatus         `json:"modelStatus"`
	Ephemeral   model.EphemeralStatus     `json:"aiEphemeral"`
	Context     model.ConversationContext `json:"conversationContext"`
	Summary     string                    `json:"conversationSummary"`
	Summarizing bool                      `json:"isSummarizing"`
	Expanded    []string                  `json:"expandedMessages"`
	HistoryLen  int                       `json:"historyLength"`
	AITurns     int                       `json:"aiTurns"`
}

// IsExpanded reports whether message id is expanded.
func (s State) IsExpanded(id string) bool {
	for _, e := range s.Expanded {
		if e == id {
			return true
		}
	}
	return false
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns conversation state. It is safe for concurrent use.
type Orchestrator struct {
	gw         Gateway
	avail      Availability
	summarizer Summarizer
	clock      schedule.Clock
	logger     *zap.Logger
	cfg        Config

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	busy        atomic.Bool
	summarizing atomic.Bool

	mu          sync.Mutex
	messages    []*model.Message
	history     []*model.Message
	convCtx     model.ConversationContext
	summary     string
	ephemeral   model.EphemeralStatus
	expanded    map[string]bool
	input       string
	draft       string
	availKnown  bool
	available   bool
	generation  uint64
	turnSeq     uint64
	activeTurn  uint64
	turnCancel  context.CancelFunc
	stageTimer  schedule.Handle
	subscribers map[int]chan struct{}
	nextSubID   int
}

// New creates an Orchestrator. Call Start to run the first availability
// check and Close to release background work.
func New(gw Gateway, avail Availability, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		gw:          gw,
		avail:       avail,
		clock:       schedule.RealClock{},
		logger:      zap.NewNop(),
		cfg:         DefaultConfig(),
		baseCtx:     ctx,
		cancel:      cancel,
		expanded:    make(map[string]bool),
		subscribers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.summarizer == nil {
		o.summarizer = NewLLMSummarizer(gw, o.cfg.Language, o.cfg.StructuredOutput)
	}
	avail.OnChange(o.onStatus)
	return o
}

// Start runs the initial availability check.
func (o *Orchestrator) Start(ctx context.Context) {
	o.CheckAvailability(ctx)
}

// CheckAvailability re-runs the availability check and resets aiAvailable
// from its result.
func (o *Orchestrator) CheckAvailability(ctx context.Context) model.ModelStatus {
	st := o.avail.Start(ctx)
	o.mu.Lock()
	o.availKnown = true
	o.available = st.Usable()
	o.mu.Unlock()
	o.notify()
	return st
}

// onStatus follows monitor updates. A model that becomes ready enables
// input; other transitions leave aiAvailable alone so turns can still
// explain the state.
func (o *Orchestrator) onStatus(st model.ModelStatus) {
	if st.Ready() {
		o.mu.Lock()
		o.availKnown = true
		o.available = true
		o.mu.Unlock()
	}
	o.notify()
}

// BeginModelDownload asks the engine to fetch the model and polls until
// the download settles.
func (o *Orchestrator) BeginModelDownload(ctx context.Context) gateway.DownloadResult {
	res := o.avail.BeginDownload(ctx)
	if res.Err != nil {
		o.logger.Warn("model download could not start", zap.Error(res.Err))
	}
	return res
}

// Available reports whether turns are accepted.
func (o *Orchestrator) Available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.availKnown && o.available
}

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// ResetConversation clears messages, history, context and summary. An
// in-flight turn is cancelled and its result discarded.
func (o *Orchestrator) ResetConversation() {
	o.mu.Lock()
	o.generation++
	cancel := o.turnCancel
	o.turnCancel = nil
	if o.stageTimer != nil {
		o.stageTimer.Stop()
		o.stageTimer = nil
	}
	o.activeTurn = 0
	o.messages = nil
	o.history = nil
	o.convCtx = model.ConversationContext{}
	o.summary = ""
	o.ephemeral = model.EphemeralStatus{}
	o.expanded = make(map[string]bool)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logger.Info("conversation reset")
	o.notify()
}

// ToggleMessageExpansion flips whether message id shows its full response.
func (o *Orchestrator) ToggleMessageExpansion(id string) bool {
	o.mu.Lock()
	defer func() {
		o.mu.Unlock()
		o.notify()
	}()
	if o.expanded[id] {
		delete(o.expanded, id)
		return false
	}
	o.expanded[id] = true
	return true
}

// SetInput replaces the text-entry value.
func (o *Orchestrator) SetInput(text string) {
	o.mu.Lock()
	o.input = text
	o.mu.Unlock()
	o.notify()
}

// SetSpeechDraft shows an interim transcript.
func (o *Orchestrator) SetSpeechDraft(text string) {
	o.mu.Lock()
	o.draft = text
	o.mu.Unlock()
	o.notify()
}

// ClearSpeechDraft removes the interim transcript.
func (o *Orchestrator) ClearSpeechDraft() {
	o.SetSpeechDraft("")
}

// HandleSendMessage submits the current input asynchronously.
func (o *Orchestrator) HandleSendMessage() error {
	o.mu.Lock()
	value := o.input
	o.mu.Unlock()
	return o.SubmitTurnAsync(value)
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	status := o.avail.Status()

	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Messages:    make([]*model.Message, len(o.messages)),
		Input:       o.input,
		SpeechDraft: o.draft,
		Loading:     o.busy.Load(),
		ModelStatus: status,
		Ephemeral:   o.ephemeral,
		Context:     o.convCtx.Clone(),
		Summary:     o.summary,
		Summarizing: o.summarizing.Load(),
		HistoryLen:  len(o.history),
		AITurns:     countAI(o.history),
	}
	for i, m := range o.messages {
		s.Messages[i] = m.Clone()
	}
	if o.availKnown {
		v := o.available
		s.AIAvailable = &v
	}
	for _, m := range o.messages {
		if o.expanded[m.ID] {
			s.Expanded = append(s.Expanded, m.ID)
		}
	}
	return s
}

// History returns a copy of the model-facing history.
func (o *Orchestrator) History() []*model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*model.Message, len(o.history))
	for i, m := range o.history {
		out[i] = m.Clone()
	}
	return out
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce; read Snapshot after each one. Call cancel to
// unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	o.mu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = ch
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until in-flight turns and summarizations finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels background work, stops the monitor and waits.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.mu.Lock()
	if o.turnCancel != nil {
		o.turnCancel()
	}
	if o.stageTimer != nil {
		o.stageTimer.Stop()
	}
	o.mu.Unlock()
	o.avail.Stop()
	o.wg.Wait()
	return nil
}

func countAI(msgs []*model.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == model.SenderAI {
			n++
		}
	}
	return n
}
