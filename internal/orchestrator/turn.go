// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/tracker"
)

// turn is the bookkeeping for one accepted submission.
type turn struct {
	id         uint64
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	prompt     PromptInput
}

// SubmitTurn runs one AI turn for text and returns once it has settled.
// Concurrent submissions are rejected with ErrTurnInFlight, never queued.
func (o *Orchestrator) SubmitTurn(ctx context.Context, text string) error {
	t, err := o.begin(ctx, text)
	if err != nil || t == nil {
		return err
	}
	o.run(t)
	return nil
}

// SubmitTurnAsync accepts or rejects text immediately and settles the turn
// in the background.
func (o *Orchestrator) SubmitTurnAsync(text string) error {
	if o.baseCtx.Err() != nil {
		return ErrClosed
	}
	t, err := o.begin(o.baseCtx, text)
	if err != nil || t == nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(t)
	}()
	return nil
}

// begin validates text and takes the turn lock. A nil turn with a nil
// error means the input was a local command that is already handled.
func (o *Orchestrator) begin(ctx context.Context, text string) (*turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if !o.Available() {
		return nil, ErrUnavailable
	}
	if !o.busy.CompareAndSwap(false, true) {
		o.logger.Debug("submission dropped: turn in flight")
		return nil, ErrTurnInFlight
	}

	if text == LogCommand {
		o.appendLog()
		o.busy.Store(false)
		o.notify()
		return nil, nil
	}

	userMsg := model.NewPlainMessage(model.SenderUser, text)

	o.mu.Lock()
	o.turnSeq++
	t := &turn{id: o.turnSeq, generation: o.generation}
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.prompt = PromptInput{
		Message: text,
		History: cloneAll(o.history),
		Summary: o.summary,
	}
	o.messages = append(o.messages, userMsg)
	o.history = append(o.history, userMsg)
	o.convCtx = tracker.Observe(o.convCtx, text)
	t.prompt.Context = o.convCtx.Clone()
	o.input = ""
	o.draft = ""

	o.activeTurn = t.id
	o.turnCancel = t.cancel
	o.ephemeral = model.EphemeralStatus{Active: true, Stage: model.StageReceived}
	o.stageTimer = o.clock.AfterFunc(o.cfg.SentDelay, func() {
		o.advanceStage(t.id, model.StageReceived, model.StageSent)
	})
	o.mu.Unlock()

	o.logger.Debug("turn accepted", zap.Uint64("turn", t.id))
	o.notify()
	return t, nil
}

// run executes an accepted turn through settlement.
func (o *Orchestrator) run(t *turn) {
	defer o.finish(t)

	status := o.avail.Status()
	if !status.Ready() {
		status = o.avail.Refresh(t.ctx)
	}
	if !status.Ready() {
		o.logger.Info("turn answered with model status", zap.String("status", status.Status.String()))
		o.settle(t, nil, statusMessage(status))
		return
	}

	o.advanceStage(t.id, "", model.StageThinking)

	prompt := BuildPrompt(t.prompt, o.cfg.PromptHistory)
	cfg := o.sessionConfig()

	if !o.gw.SupportsStreaming() {
		out, err := o.gw.Prompt(t.ctx, cfg, prompt)
		if err != nil {
			o.logger.Warn("turn failed", zap.Uint64("turn", t.id), zap.Error(err))
			o.settle(t, nil, apologyMessage())
			return
		}
		o.settle(t, nil, model.NewStructuredMessage(model.SenderAI, RecoverResponse(out)))
		return
	}

	placeholder := model.NewStreamingMessage(model.SenderAI)
	if !o.addPlaceholder(t, placeholder) {
		return
	}
	out, err := o.gw.PromptStream(t.ctx, cfg, prompt, func(chunk string) {
		o.applyChunk(t, placeholder, chunk)
	})
	if err != nil {
		o.logger.Warn("streaming turn failed", zap.Uint64("turn", t.id), zap.Error(err))
		o.settle(t, placeholder, apologyMessage())
		return
	}
	o.settle(t, placeholder, model.NewStructuredMessage(model.SenderAI, RecoverResponse(out)))
}

func (o *Orchestrator) sessionConfig() engine.SessionConfig {
	cfg := engine.SessionConfig{
		Language:    o.cfg.Language,
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.StructuredOutput {
		cfg.Format = ResponseSchema()
	}
	return cfg
}

// advanceStage sets the ephemeral stage for turn id. When from is set the
// change applies only if the current stage still equals from.
func (o *Orchestrator) advanceStage(id uint64, from, to model.Stage) {
	o.mu.Lock()
	if o.activeTurn != id || !o.ephemeral.Active || (from != "" && o.ephemeral.Stage != from) {
		o.mu.Unlock()
		return
	}
	o.ephemeral.Stage = to
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) current(t *turn) bool {
	return o.generation == t.generation && o.activeTurn == t.id
}

func (o *Orchestrator) addPlaceholder(t *turn, p *model.Message) bool {
	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		return false
	}
	o.messages = append(o.messages, p)
	o.mu.Unlock()
	o.notify()
	return true
}

// applyChunk grows the placeholder while it is still on screen.
func (o *Orchestrator) applyChunk(t *turn, p *model.Message, chunk string) {
	o.mu.Lock()
	if !o.current(t) || indexOf(o.messages, p) < 0 {
		o.mu.Unlock()
		return
	}
	p.AppendChunk(chunk)
	o.mu.Unlock()
	o.notify()
}

// settle records the AI message for turn t. A turn abandoned by reset
// settles nothing.
func (o *Orchestrator) settle(t *turn, placeholder, msg *model.Message) {
	o.mu.Lock()
	if !o.current(t) {
		o.mu.Unlock()
		o.logger.Debug("discarding result of abandoned turn", zap.Uint64("turn", t.id))
		return
	}

	o.ephemeral = model.EphemeralStatus{}
	if o.stageTimer != nil {
		o.stageTimer.Stop()
		o.stageTimer = nil
	}

	if i := indexOf(o.messages, placeholder); placeholder != nil && i >= 0 {
		o.messages[i] = msg
	} else {
		o.messages = append(o.messages, msg)
	}
	o.history = append(o.history, msg)

	if sp, ok := msg.Structured(); ok && len(sp.Topics) > 0 {
		o.convCtx.Topics = tracker.MergeTopics(o.convCtx.Topics, sp.Topics)
	}
	o.mu.Unlock()
	o.notify()
}

// finish releases the turn lock and checks the summarization cadence.
func (o *Orchestrator) finish(t *turn) {
	o.mu.Lock()
	if o.activeTurn == t.id {
		o.activeTurn = 0
		o.turnCancel = nil
		o.ephemeral = model.EphemeralStatus{}
		if o.stageTimer != nil {
			o.stageTimer.Stop()
			o.stageTimer = nil
		}
	}
	o.mu.Unlock()

	t.cancel()
	o.busy.Store(false)
	o.notify()
	o.maybeSummarize()
}

// maybeSummarize starts a background summarization after every
// SummarizeEvery-th AI turn in history, unless one is already running.
func (o *Orchestrator) maybeSummarize() {
	if o.baseCtx.Err() != nil || o.summarizer == nil {
		return
	}

	o.mu.Lock()
	count := countAI(o.history)
	if count == 0 || count%o.cfg.SummarizeEvery != 0 {
		o.mu.Unlock()
		return
	}
	if !o.summarizing.CompareAndSwap(false, true) {
		o.mu.Unlock()
		return
	}
	gen := o.generation
	req := SummaryRequest{
		PreviousSummary: o.summary,
		History:         cloneAll(o.history),
		Context:         o.convCtx.Clone(),
	}
	o.wg.Add(1)
	o.mu.Unlock()
	o.notify()

	o.logger.Debug("summarization started", zap.Int("ai_turns", count))

	go func() {
		defer o.wg.Done()
		defer func() {
			o.summarizing.Store(false)
			o.notify()
		}()

		res, err := o.summarizer.Summarize(o.baseCtx, req)
		if err != nil {
			o.logger.Warn("summarization failed", zap.Error(err))
			return
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation != gen {
			return
		}
		o.summary = res.Summary
		o.convCtx.Topics = tracker.MergeTopics(o.convCtx.Topics, res.Topics)
		if len(o.history) > o.cfg.HistoryKeep {
			o.history = append([]*model.Message(nil), o.history[len(o.history)-o.cfg.HistoryKeep:]...)
		}
		o.logger.Info("conversation summarized",
			zap.Int("history", len(o.history)),
			zap.Int("summary_chars", len([]rune(o.summary))))
	}()
}

func indexOf(msgs []*model.Message, m *model.Message) int {
	if m == nil {
		return -1
	}
	for i, x := range msgs {
		if x == m {
			return i
		}
	}
	return -1
}

func cloneAll(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
