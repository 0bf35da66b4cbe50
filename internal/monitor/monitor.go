// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package monitor owns the model availability state and polls it while a
// download is in progress.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/schedule"
)

// DefaultPollInterval is the fixed download polling period.
const DefaultPollInterval = 3000 * time.Millisecond

// Messages published by the monitor itself.
const (
	MsgChecking      = "AI機能を確認中..."
	MsgStartDownload = "モデルのダウンロードを開始しています..."
)

// StatusChecker is the part of the gateway the monitor needs.
type StatusChecker interface {
	Present() bool
	CheckStatus(ctx context.Context, language string) model.ModelStatus
	RequestDownload(ctx context.Context, language string) gateway.DownloadResult
}

// Monitor tracks model availability. It is safe for concurrent use.
type Monitor struct {
	checker  StatusChecker
	clock    schedule.Clock
	interval time.Duration
	language string
	logger   *zap.Logger

	// pollCtx is used for checks issued by the poll loop; Stop cancels it.
	pollCtx    context.Context
	cancelPoll context.CancelFunc

	mu        sync.Mutex
	status    model.ModelStatus
	poll      schedule.Handle
	pollGen   uint64
	listeners []func(model.ModelStatus)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for polling.
func WithClock(c schedule.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLanguage sets the language passed to status checks.
func WithLanguage(lang string) Option {
	return func(m *Monitor) { m.language = lang }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Monitor. The initial status is checking.
func New(checker StatusChecker, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		checker:    checker,
		clock:      schedule.RealClock{},
		interval:   DefaultPollInterval,
		language:   "ja",
		logger:     zap.NewNop(),
		pollCtx:    ctx,
		cancelPoll: cancel,
		status:     model.ModelStatus{Status: model.StatusChecking, Message: MsgChecking},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to receive every published status. fn runs on the
// publishing goroutine and must not call back into the Monitor's setters.
func (m *Monitor) OnChange(fn func(model.ModelStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the latest status.
func (m *Monitor) Status() model.ModelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Polling reports whether a poll is scheduled.
func (m *Monitor) Polling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poll != nil
}

// Start runs the initial check and begins polling if a download is already
// underway. It returns the resulting status.
func (m *Monitor) Start(ctx context.Context) model.ModelStatus {
	m.publish(model.ModelStatus{Status: model.StatusChecking, Message: MsgChecking})

	if !m.checker.Present() {
		st := model.ModelStatus{Status: model.StatusNotAvailable, Message: gateway.MsgEngineAbsent}
		m.publish(st)
		return st
	}

	st := m.Refresh(ctx)
	if st.Status == model.StatusDownloading {
		m.startPolling()
	}
	return st
}

// Refresh runs one check outside the poll schedule and publishes it.
func (m *Monitor) Refresh(ctx context.Context) model.ModelStatus {
	st := m.checker.CheckStatus(ctx, m.language)
	m.publish(st)
	return st
}

// BeginDownload requests the model and polls until the download settles.
func (m *Monitor) BeginDownload(ctx context.Context) gateway.DownloadResult {
	m.publish(model.ModelStatus{Status: model.StatusDownloading, Message: MsgStartDownload})

	res := m.checker.RequestDownload(ctx, m.language)
	if res.Err != nil {
		m.logger.Warn("download request rejected", zap.Error(res.Err))
	}
	// Poll even on failure; the next check reports the real state.
	m.startPolling()
	return res
}

// Stop cancels polling. The Monitor may not be restarted.
func (m *Monitor) Stop() {
	m.cancelPoll()
	m.mu.Lock()
	h := m.poll
	m.poll = nil
	m.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

func (m *Monitor) startPolling() {
	if m.pollCtx.Err() != nil {
		return
	}

	m.mu.Lock()
	old := m.poll
	m.pollGen++
	gen := m.pollGen
	m.poll = schedule.Repeat(m.clock, m.interval, func() bool {
		return m.tick(gen)
	})
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	m.logger.Debug("status polling started", zap.Duration("interval", m.interval))
}

// tick runs one poll and reports whether polling continues. A tick whose
// generation was replaced by a newer startPolling neither checks nor
// publishes.
func (m *Monitor) tick(gen uint64) bool {
	if m.pollCtx.Err() != nil || !m.isCurrent(gen) {
		return false
	}
	st := m.checker.CheckStatus(m.pollCtx, m.language)
	if !m.publishIf(st, func() bool { return m.pollGen == gen }) {
		m.logger.Debug("stale poll result dropped", zap.String("status", st.Status.String()))
		return false
	}
	if st.Status == model.StatusDownloading {
		return true
	}

	m.mu.Lock()
	if m.pollGen == gen {
		m.poll = nil
	}
	m.mu.Unlock()
	m.logger.Debug("status polling stopped", zap.String("status", st.Status.String()))
	return false
}

func (m *Monitor) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollGen == gen
}

func (m *Monitor) publish(st model.ModelStatus) {
	m.publishIf(st, func() bool { return true })
}

// publishIf stores st and notifies listeners when ok, evaluated under the
// lock, holds. It reports whether st was published.
func (m *Monitor) publishIf(st model.ModelStatus, ok func() bool) bool {
	m.mu.Lock()
	if !ok() {
		m.mu.Unlock()
		return false
	}
	prev := m.status
	m.status = st
	listeners := append([]func(model.ModelStatus){}, m.listeners...)
	m.mu.Unlock()

	if prev.Status != st.Status {
		m.logger.Info("model status changed",
			zap.String("from", prev.Status.String()),
			zap.String("to", st.Status.String()))
	}
	for _, fn := range listeners {
		fn(st)
	}
	return true
}
