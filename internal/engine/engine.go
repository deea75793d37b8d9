package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-sync/internal/api"
	"github.com/vovakirdan/wirechat-sync/internal/auth"
	"github.com/vovakirdan/wirechat-sync/internal/config"
	"github.com/vovakirdan/wirechat-sync/internal/conn"
	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/event"
	"github.com/vovakirdan/wirechat-sync/internal/messages"
	"github.com/vovakirdan/wirechat-sync/internal/metrics"
	"github.com/vovakirdan/wirechat-sync/internal/presence"
	"github.com/vovakirdan/wirechat-sync/internal/subscription"
	"github.com/vovakirdan/wirechat-sync/internal/typing"
	"github.com/vovakirdan/wirechat-sync/internal/unread"
)

// Options wires an Engine to its collaborators.
type Options struct {
	Config config.Config
	// API is the record API used for history and mutations.
	API api.Client
	// Dialer overrides the websocket dialer, e.g. in tests.
	Dialer  conn.Dialer
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

type openChat struct {
	store   *messages.Store
	loading bool
}

type typingKey struct {
	chatID int64
	userID int64
}

// Engine keeps chats, message history, presence, typing and unread state in
// sync with the event stream of one authenticated session.
//
// Every inbound event is applied under one lock before external listeners see
// it, so queries made from a listener observe the event fully applied.
type Engine struct {
	cfg      config.Config
	self     int64
	pageSize int

	api     api.Client
	conn    *conn.Manager
	subs    *subscription.Registry
	bus     *event.Bus
	log     *zerolog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	closed     bool
	opens      int
	chats      map[int64]*core.Chat
	open       map[int64]*openChat
	presence   *presence.Tracker
	typing     *typing.Aggregator
	unread     *unread.Coordinator
	timers     map[typingKey]*time.Timer
	lastTyping map[int64]time.Time
}

// New builds an engine for the session described by opts.Config. When no user
// id is configured it is read from the bearer token.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.API == nil {
		return nil, errors.New("engine: api client is required")
	}

	self := cfg.UserID
	if cfg.Token != "" {
		id, err := auth.Inspect(cfg.Token, time.Now())
		if err != nil {
			return nil, fmt.Errorf("inspect credential: %w", err)
		}
		if self == 0 {
			self = id.UserID
		}
	}
	if self == 0 {
		logger.Warn().Msg("local user id unknown; own messages cannot be told apart")
	}

	pageSize := cfg.HistoryPageSize
	if pageSize <= 0 {
		pageSize = config.Default().HistoryPageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		self:       self,
		pageSize:   pageSize,
		api:        opts.API,
		bus:        event.NewBus(),
		log:        logger,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
		chats:      make(map[int64]*core.Chat),
		open:       make(map[int64]*openChat),
		presence:   presence.New(),
		typing:     typing.New(cfg.TypingTTL, self),
		unread:     unread.New(self),
		timers:     make(map[typingKey]*time.Timer),
		lastTyping: make(map[int64]time.Time),
	}

	e.subs = subscription.NewRegistry(nil, logger)
	e.conn = conn.NewManager(conn.Options{
		URL:           cfg.ServerURL,
		Token:         cfg.Token,
		Dialer:        opts.Dialer,
		Handler:       handler{e},
		Subscriptions: e.subs,
		PingInterval:  cfg.PingInterval,
		PongTimeout:   cfg.PongTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		BaseDelay:     cfg.ReconnectBaseDelay,
		MaxDelay:      cfg.ReconnectMaxDelay,
		MaxAttempts:   cfg.MaxReconnectAttempts,
		Logger:        logger,
		Metrics:       opts.Metrics,
	})
	e.subs.SetSender(e.conn)

	// Registered first, so state is updated before any external listener runs.
	e.bus.AddListener(nil, e.apply)

	return e, nil
}

// Self returns the local actor's user id.
func (e *Engine) Self() int64 { return e.self }

// Run keeps the session connected until ctx is cancelled, Close is called, or
// the connection ends for good (rejected credential, superseded session,
// reconnect attempts exhausted). It returns nil on caller-initiated shutdown.
func (e *Engine) Run(ctx context.Context) error {
	err := e.conn.Run(ctx)
	e.teardown()
	return err
}

// Close stops Run. Pending history fetches are cancelled and timers stopped.
func (e *Engine) Close() {
	e.conn.Close()
	e.teardown()
}

// Connected reports whether the event stream is currently open.
func (e *Engine) Connected() bool { return e.conn.Connected() }

// AddListener registers fn for every inbound event accepted by filter (nil
// accepts all). Listeners run on the connection's read goroutine, after the
// event has been applied, in arrival order. They may call any Engine method,
// including AddListener and the returned remove function.
func (e *Engine) AddListener(filter event.Filter, fn event.Listener) func() {
	return e.bus.AddListener(filter, fn)
}

func (e *Engine) teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.cancel()
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
}

// handler adapts the engine to connection lifecycle signals.
type handler struct{ e *Engine }

func (h handler) OnOpen(connID string) {
	h.e.onOpen(connID)
}

func (h handler) OnMessage(data []byte) {
	h.e.handleFrame(data)
}

func (h handler) OnClose(err error, retrying bool) {
	l := h.e.log.Info()
	if err != nil && !retrying {
		l = h.e.log.Error()
	}
	l.Err(err).Bool("retrying", retrying).Msg("event stream closed")
}

func (e *Engine) onOpen(connID string) {
	e.mu.Lock()
	e.opens++
	reconnect := e.opens > 1
	var stale []*openChat
	if reconnect {
		for _, v := range e.open {
			if v.store.State() != messages.FetchPending && !v.loading {
				v.loading = true
				stale = append(stale, v)
			}
		}
	}
	e.mu.Unlock()

	e.log.Info().Str("conn_id", connID).Bool("reconnect", reconnect).Msg("event stream open")

	// Messages sent while disconnected are caught up from the newest page.
	for _, v := range stale {
		go e.fetch(e.ctx, v, 0)
	}
}

func (e *Engine) chat(chatID int64) *core.Chat {
	c, ok := e.chats[chatID]
	if !ok {
		c = &core.Chat{ID: chatID}
		e.chats[chatID] = c
	}
	return c
}

func (e *Engine) snapshot(c *core.Chat) core.Chat {
	cp := c.Clone()
	cp.UnreadCount = e.unread.Count(c.ID)
	return *cp
}
