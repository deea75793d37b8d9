package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/metrics"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
	"github.com/vovakirdan/wirechat-sync/internal/utils"
)

var (
	// ErrUnauthorized means the server rejected the credential. The manager does not retry it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSuperseded means a newer connection for the same identity replaced this one.
	ErrSuperseded = errors.New("connection superseded")
	// ErrRetriesExhausted means reconnect gave up after the configured number of attempts.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	errHeartbeatTimeout = errors.New("heartbeat timeout")
)

// Handler receives lifecycle signals. Calls come from the manager's goroutine, one at a time.
type Handler interface {
	// OnOpen runs after the subscription replay has been written and before any frame is read.
	OnOpen(connID string)
	OnMessage(data []byte)
	// OnClose reports the end of an open connection, or the final failure. retrying tells whether a reconnect follows.
	OnClose(err error, retrying bool)
}

// Resubscriber supplies the desired subscription set on every open.
type Resubscriber interface {
	Resync() []int64
}

// Options configures a Manager.
type Options struct {
	URL           string
	Token         string
	Dialer        Dialer
	Handler       Handler
	Subscriptions Resubscriber

	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	// MaxAttempts bounds consecutive failed attempts. Zero means unbounded.
	MaxAttempts int

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Manager owns the single event stream connection of a session.
type Manager struct {
	opts Options
	log  *zerolog.Logger

	// mu guards current and connID. It is held while a fresh connection replays
	// subscriptions so that no Send overtakes the replay.
	mu      sync.Mutex
	current Transport
	connID  string
	writeMu sync.Mutex

	stopMu sync.Mutex
	stop   context.CancelFunc
	closed bool
}

// NewManager validates options and fills defaults.
func NewManager(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = &WSDialer{}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{opts: opts, log: logger}
}

// Run connects and keeps the connection alive until ctx is done, Close is called,
// or a non-retryable condition occurs. It returns nil on caller-initiated shutdown.
func (m *Manager) Run(ctx context.Context) error {
	if m.opts.Token == "" {
		err := fmt.Errorf("%w: missing credential", ErrUnauthorized)
		m.notifyClose(err, false)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !m.setStop(cancel) {
		return nil
	}

	failures := 0
	for {
		opened, err := m.session(ctx)
		if ctx.Err() != nil {
			if opened {
				m.notifyClose(nil, false)
			}
			return nil
		}

		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSuperseded) {
			if errors.Is(err, ErrUnauthorized) {
				m.log.Error().Err(err).Msg("authentication failed, not retrying")
			} else {
				m.log.Info().Msg("connection superseded by a newer session")
			}
			m.notifyClose(err, false)
			return err
		}

		if opened {
			failures = 0
		}
		failures++
		if m.opts.MaxAttempts > 0 && failures > m.opts.MaxAttempts {
			err = fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			m.log.Error().Err(err).Int("attempts", failures-1).Msg("giving up")
			m.notifyClose(err, false)
			return err
		}

		if opened {
			m.notifyClose(err, true)
		}

		delay := m.backoff(failures)
		m.log.Warn().Err(err).Int("attempt", failures).Dur("delay", delay).Msg("connection lost, reconnecting")
		m.opts.Metrics.Reconnect()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close stops Run and closes the live connection with a normal status. Safe to call more than once.
func (m *Manager) Close() {
	m.stopMu.Lock()
	m.closed = true
	stop := m.stop
	m.stopMu.Unlock()
	if stop != nil {
		stop()
	}
}

// Send writes frame on the live connection. It returns core.ErrNotConnected when there is none.
func (m *Manager) Send(ctx context.Context, frame proto.Frame) error {
	m.mu.Lock()
	t := m.current
	m.mu.Unlock()
	if t == nil {
		return core.ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return m.write(ctx, t, data)
}

// Connected reports whether a connection is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// ConnID is the log correlation id of the open connection, or "".
func (m *Manager) ConnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

func (m *Manager) session(ctx context.Context) (bool, error) {
	connID := utils.NewID()
	logger := m.log.With().Str("conn_id", connID).Logger()

	t, err := m.opts.Dialer.Dial(ctx, m.opts.URL, m.opts.Token)
	if err != nil {
		return false, classify(err)
	}

	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := m.open(sctx, t, connID); err != nil {
		_ = t.Close(CloseGoingAway, "replay failed")
		return false, err
	}
	logger.Info().Msg("connected")
	m.opts.Metrics.SetConnected(true)

	defer func() {
		m.mu.Lock()
		m.current = nil
		m.connID = ""
		m.mu.Unlock()
		m.opts.Metrics.SetConnected(false)
	}()

	if m.opts.Handler != nil {
		m.opts.Handler.OnOpen(connID)
	}

	alive := make(chan struct{}, 1)
	go m.heartbeat(sctx, cancel, t, alive, &logger)

	for {
		data, err := t.Read(sctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = t.Close(CloseNormal, "client closing")
				return true, ctx.Err()
			}
			if cause := context.Cause(sctx); cause != nil && !errors.Is(cause, context.Canceled) {
				err = cause
			}
			_ = t.Close(CloseGoingAway, "reconnecting")
			return true, classify(err)
		}

		select {
		case alive <- struct{}{}:
		default:
		}

		if m.opts.Handler != nil {
			m.opts.Handler.OnMessage(data)
		}
	}
}

// open replays the desired subscriptions in one frame, then publishes the transport for Send.
func (m *Manager) open(ctx context.Context, t Transport, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.Subscriptions != nil {
		if ids := m.opts.Subscriptions.Resync(); len(ids) > 0 {
			data, err := json.Marshal(proto.SubscribeAll(ids))
			if err != nil {
				return fmt.Errorf("marshal subscribe_all: %w", err)
			}
			if err := m.write(ctx, t, data); err != nil {
				return fmt.Errorf("replay subscriptions: %w", classify(err))
			}
		}
	}

	m.current = t
	m.connID = connID
	return nil
}

func (m *Manager) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, t Transport, alive <-chan struct{}, logger *zerolog.Logger) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	var (
		deadline *time.Timer
		expired  <-chan time.Time
		active   bool
	)
	defer func() {
		if deadline != nil {
			deadline.Stop()
		}
	}()

	ping, _ := json.Marshal(proto.Ping())

	for {
		select {
		case <-ctx.Done():
			return
		case <-alive:
			active = true
			if deadline != nil {
				deadline.Stop()
				deadline, expired = nil, nil
			}
		case <-ticker.C:
			if active {
				active = false
				continue
			}
			if deadline != nil {
				continue
			}
			if err := m.write(ctx, t, ping); err != nil {
				cancel(err)
				return
			}
			deadline = time.NewTimer(m.opts.PongTimeout)
			expired = deadline.C
		case <-expired:
			logger.Warn().Dur("pong_timeout", m.opts.PongTimeout).Msg("no pong from server")
			cancel(errHeartbeatTimeout)
			return
		}
	}
}

func (m *Manager) write(ctx context.Context, t Transport, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return t.Write(ctx, data)
}

// backoff returns the delay before attempt n (1-based), doubling from BaseDelay up to MaxDelay with ±20% jitter.
func (m *Manager) backoff(n int) time.Duration {
	d := m.opts.BaseDelay
	for i := 1; i < n && d < m.opts.MaxDelay; i++ {
		d *= 2
	}
	if d > m.opts.MaxDelay {
		d = m.opts.MaxDelay
	}
	jitter := time.Duration(float64(d) * 0.2 * (rand.Float64()*2 - 1))
	return d + jitter
}

func (m *Manager) setStop(cancel context.CancelFunc) bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.closed {
		return false
	}
	m.stop = cancel
	return true
}

func (m *Manager) notifyClose(err error, retrying bool) {
	if m.opts.Handler != nil {
		m.opts.Handler.OnClose(err, retrying)
	}
}

func classify(err error) error {
	var ce *CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case CloseUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, ce.Reason)
		case CloseSuperseded:
			return fmt.Errorf("%w: %s", ErrSuperseded, ce.Reason)
		}
	}
	return err
}
