// Package bot answers chat commands over supervised gateway sessions.
//
// The bot consumes each session published by the connection supervisor,
// pumps its inbound messages through a growable queue, and dispatches
// prefix commands (!ping, !status, ...) to a handler table. Replies go
// out over whichever session is currently live.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/connection"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
)

const replyTimeout = 30 * time.Second

// Supervisor is the slice of the connection supervisor the bot consumes:
// session hand-offs plus health snapshots for the status command.
type Supervisor interface {
	Sessions() <-chan protocol.Session
	CurrentSession() (protocol.Session, bool)
	Stats() connection.SupervisorStats
}

// BotConfig tunes command handling.
type BotConfig struct {
	// CommandPrefix marks a message as a command, e.g. "!".
	CommandPrefix string

	// QueueCapacity is the initial inbound queue size. The queue grows on
	// demand and never drops messages.
	QueueCapacity int
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		CommandPrefix: "!",
		QueueCapacity: 64,
	}
}

// BotStats contains runtime statistics.
type BotStats struct {
	Received int64      `json:"received"`
	Handled  int64      `json:"handled"`
	Ignored  int64      `json:"ignored"`
	Errors   int64      `json:"errors"`
	Queue    QueueStats `json:"queue"`
}

// Handler processes one command and returns the reply text. An empty
// reply sends nothing.
type Handler func(ctx context.Context, msg protocol.Message, args []string) (string, error)

// Bot dispatches chat commands.
type Bot struct {
	cfg    BotConfig
	logger *slog.Logger

	sup      Supervisor
	queue    *Queue[protocol.Message]
	handlers map[string]Handler

	clock func() time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu       sync.RWMutex
	received int64
	handled  int64
	ignored  int64
	errors   int64
}

// NewBot creates a bot with the built-in command set.
func NewBot(cfg BotConfig, sup Supervisor, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBotConfig()
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = def.CommandPrefix
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = def.QueueCapacity
	}

	b := &Bot{
		cfg:    cfg,
		logger: logger,
		sup:    sup,
		queue:  NewQueue[protocol.Message](cfg.QueueCapacity),
		clock:  time.Now,
	}
	b.handlers = map[string]Handler{
		"ping":   b.cmdPing,
		"status": b.cmdStatus,
		"uptime": b.cmdUptime,
		"help":   b.cmdHelp,
	}
	return b
}

// Register adds a handler for a command name. Must be called before
// Start.
func (b *Bot) Register(name string, h Handler) {
	b.handlers[strings.ToLower(name)] = h
}

// Start begins consuming sessions and dispatching commands.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go b.sessionLoop()
	go b.dispatchLoop()

	b.logger.Info("command bot started",
		"prefix", b.cfg.CommandPrefix,
		"commands", len(b.handlers),
	)
	return nil
}

// Stop shuts the bot down. Queued messages not yet dispatched are
// dropped.
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("stopping command bot")

	if b.cancel != nil {
		b.cancel()
	}
	b.queue.Close()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("command bot stopped")
	case <-ctx.Done():
		b.logger.Warn("command bot stop timed out")
	}
	return nil
}

// Stats returns current counters.
func (b *Bot) Stats() BotStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BotStats{
		Received: b.received,
		Handled:  b.handled,
		Ignored:  b.ignored,
		Errors:   b.errors,
		Queue:    b.queue.Stats(),
	}
}

// sessionLoop attaches a pump to every session the supervisor publishes.
func (b *Bot) sessionLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case sess := <-b.sup.Sessions():
			b.logger.Info("session attached")
			b.wg.Add(1)
			go b.pump(sess)
		}
	}
}

// pump moves inbound messages into the queue until the session ends. A
// superseded session ends via Done, so stale pumps exit on their own.
func (b *Bot) pump(sess protocol.Session) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-sess.Done():
			b.logger.Info("session detached")
			return
		case msg := <-sess.Messages():
			b.queue.Push(msg)
		}
	}
}

// dispatchLoop drains the queue until Stop closes it.
func (b *Bot) dispatchLoop() {
	defer b.wg.Done()

	for {
		msg, ok := b.queue.Pop()
		if !ok {
			return
		}
		if b.ctx.Err() != nil {
			return
		}
		b.dispatch(msg)
	}
}

// dispatch runs one message through the command table.
func (b *Bot) dispatch(msg protocol.Message) {
	b.mu.Lock()
	b.received++
	b.mu.Unlock()

	text := strings.TrimSpace(msg.Text)
	if msg.FromMe || !strings.HasPrefix(text, b.cfg.CommandPrefix) {
		b.mu.Lock()
		b.ignored++
		b.mu.Unlock()
		return
	}

	fields := strings.Fields(strings.TrimPrefix(text, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		b.mu.Lock()
		b.ignored++
		b.mu.Unlock()
		return
	}
	name := strings.ToLower(fields[0])

	var reply string
	var err error
	if handler, ok := b.handlers[name]; ok {
		reply, err = handler(b.ctx, msg, fields[1:])
	} else {
		reply = fmt.Sprintf("unknown command %q, try %shelp", name, b.cfg.CommandPrefix)
	}
	if err == nil && reply != "" {
		err = b.send(msg.Chat, reply)
	}

	if err != nil {
		b.mu.Lock()
		b.errors++
		b.mu.Unlock()
		b.logger.Warn("command failed", "command", name, "chat", msg.Chat, "error", err)
		return
	}

	b.mu.Lock()
	b.handled++
	b.mu.Unlock()
	b.logger.Debug("command handled", "command", name, "chat", msg.Chat)
}

// send replies into the originating chat over the live session.
func (b *Bot) send(chat, text string) error {
	sess, ok := b.sup.CurrentSession()
	if !ok {
		return protocol.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(b.ctx, replyTimeout)
	defer cancel()
	return sess.Send(ctx, protocol.Message{Chat: chat, Text: text})
}
