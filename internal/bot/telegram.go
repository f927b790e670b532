package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/config"
)

// TelegramBot is the slice of the bot API the channel uses; an
// interface so tests can inject a fake.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking).
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Handler consumes one inbound text message.
type Handler interface {
	HandleMessage(ctx context.Context, chatID int64, text string)
}

// Channel is the telegram transport: long polling in, chunked sends
// out.
type Channel struct {
	token      string
	proxy      string
	bot        TelegramBot
	botFactory BotFactory
	cancel     context.CancelFunc
	log        zerolog.Logger
}

func NewChannel(cfg config.TelegramConfig, logger zerolog.Logger) (*Channel, error) {
	return NewChannelWithFactory(cfg, logger, defaultBotFactory)
}

// NewChannelWithFactory creates a Channel with a custom bot factory
// (for testing).
func NewChannelWithFactory(cfg config.TelegramConfig, logger zerolog.Logger, factory BotFactory) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &Channel{
		token:      cfg.Token,
		proxy:      cfg.Proxy,
		botFactory: factory,
		log:        logger.With().Str("component", "telegram").Logger(),
	}, nil
}

func (c *Channel) initBot() error {
	client := http.DefaultClient
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := c.botFactory(c.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	c.bot = bot
	c.log.Info().Str("username", bot.GetSelf().UserName).Msg("authorized")
	return nil
}

// Start begins long polling and dispatches each text message to the
// handler on its own goroutine; per-user ordering is the handler's
// concern, not the transport's.
func (c *Channel) Start(ctx context.Context, handler Handler) error {
	if err := c.initBot(); err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				msg := update.Message
				go handler.HandleMessage(ctx, msg.Chat.ID, msg.Text)
			case <-ctx.Done():
				return
			}
		}
	}()

	c.log.Info().Msg("polling started")
	return nil
}

func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	c.log.Info().Msg("stopped")
}

// SetBot sets the bot (for testing).
func (c *Channel) SetBot(bot TelegramBot) {
	c.bot = bot
}

// SendMessage delivers text to a chat, chunking around telegram's
// message size limit at newline boundaries where possible.
func (c *Channel) SendMessage(chatID int64, text string) error {
	if c.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	const maxLen = 4000
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cut := maxLen
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				cut = idx
			}
			// Never split inside a UTF-8 sequence.
			for cut > 0 && !isRuneStart(chunk[cut]) {
				cut--
			}
			chunk = chunk[:cut]
		}
		text = strings.TrimPrefix(text[len(chunk):], "\n")

		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
