// Package telegram is a thin Telegram adapter built on the Telego library.
// It long-polls for updates, enforces the user allow-list, forwards message
// text to the core, and sends responses back chunked to Telegram's message
// size limit.
package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"github.com/oxiglade/cica/internal/channels"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/retry"
)

// maxMessageLen is Telegram's hard limit on message text length.
const maxMessageLen = 4096

// typingRefresh is how often to re-send the typing action while it is on;
// Telegram drops the indicator after about five seconds.
const typingRefresh = 4 * time.Second

// Config configures the Telegram channel.
type Config struct {
	Token        string
	AllowedUsers []string
	SendTimeout  time.Duration
}

// Channel is the Telegram implementation of channels.Channel.
type Channel struct {
	cfg    Config
	logger *logger.Logger
	bot    *telego.Bot

	typingMu   sync.Mutex
	typingStop map[string]context.CancelFunc
}

// New creates a Telegram channel. The bot connection is established on
// Start.
func New(cfg Config, log *logger.Logger) *Channel {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Channel{
		cfg:        cfg,
		logger:     log,
		typingStop: make(map[string]context.CancelFunc),
	}
}

func (c *Channel) Name() string        { return "telegram" }
func (c *Channel) DisplayName() string { return "Telegram" }

// Start connects the bot and long-polls for updates until ctx is
// cancelled, handing incoming message text to the handler. The poll loop
// reconnects with backoff when Telegram drops the connection.
func (c *Channel) Start(ctx context.Context, handler channels.IncomingHandler) error {
	bot, err := telego.NewBot(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	c.bot = bot

	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.logger.Info("telegram bot connected",
		logger.Field{Key: "bot_id", Value: botUser.ID},
		logger.Field{Key: "username", Value: botUser.Username})

	for {
		err := c.poll(ctx, handler)
		if ctx.Err() != nil {
			c.logger.Info("telegram channel stopped")
			return nil
		}
		c.logger.Warn("telegram long polling interrupted, reconnecting",
			logger.Field{Key: "error", Value: fmt.Sprint(err)})

		if err := retry.Sleep(ctx, 5*time.Second); err != nil {
			return nil
		}
	}
}

// poll runs one long-polling session until the updates channel closes or
// ctx is cancelled.
func (c *Channel) poll(ctx context.Context, handler channels.IncomingHandler) error {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("updates channel closed")
			}
			c.handleUpdate(update, handler)
		}
	}
}

// handleUpdate filters one update down to authorized text messages and
// forwards them.
func (c *Channel) handleUpdate(update telego.Update, handler channels.IncomingHandler) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	if !c.isAllowed(userID) {
		c.logger.Warn("message from unauthorized user",
			logger.Field{Key: "user_id", Value: userID})
		return
	}

	c.logger.Debug("telegram message received",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "length", Value: len(msg.Text)})

	handler(c.Name(), userID, msg.Text)
}

// isAllowed checks the user allow-list. An empty list denies everyone; the
// bridge is personal, not public.
func (c *Channel) isAllowed(userID string) bool {
	return slices.Contains(c.cfg.AllowedUsers, userID)
}

// Send delivers text to a user, split into chunks under Telegram's message
// size limit. Transient API failures (rate limits, 5xx) are retried with
// backoff.
func (c *Channel) Send(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram user ID %q: %w", userID, err)
	}

	for _, chunk := range splitMessage(text, maxMessageLen) {
		err := retry.Do(ctx, retry.Config{}, func() error {
			sendCtx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
			defer cancel()
			_, err := c.bot.SendMessage(sendCtx, &telego.SendMessageParams{
				ChatID: telego.ChatID{ID: chatID},
				Text:   chunk,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}

// SetTyping starts or stops a periodic typing action for the user.
func (c *Channel) SetTyping(ctx context.Context, userID string, typing bool) {
	c.typingMu.Lock()
	if stop, ok := c.typingStop[userID]; ok {
		stop()
		delete(c.typingStop, userID)
	}
	if !typing {
		c.typingMu.Unlock()
		return
	}

	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		c.typingMu.Unlock()
		return
	}

	typingCtx, cancel := context.WithCancel(ctx)
	c.typingStop[userID] = cancel
	c.typingMu.Unlock()

	go func() {
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			_ = c.bot.SendChatAction(typingCtx, &telego.SendChatActionParams{
				ChatID: telego.ChatID{ID: chatID},
				Action: telego.ChatActionTyping,
			})
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// splitMessage splits text into chunks of at most limit bytes, preferring
// newline boundaries so formatting survives the split.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		// Back up so a multi-byte rune is never split across chunks.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
