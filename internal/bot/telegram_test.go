package bot

import (
	"net/http"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/config"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "ryadom_test_bot"}
}

func newTestChannel(t *testing.T) (*Channel, *fakeBot) {
	t.Helper()
	fake := &fakeBot{}
	ch, err := NewChannelWithFactory(config.TelegramConfig{Token: "test-token"}, zerolog.Nop(),
		func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
			return fake, nil
		})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	ch.SetBot(fake)
	return ch, fake
}

func TestSendMessageSingleChunk(t *testing.T) {
	ch, fake := newTestChannel(t)

	if err := ch.SendMessage(42, "привет"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0].Text != "привет" || fake.sent[0].ChatID != 42 {
		t.Fatalf("unexpected send: %+v", fake.sent)
	}
}

func TestSendMessageChunksLongText(t *testing.T) {
	ch, fake := newTestChannel(t)

	long := strings.Repeat("строка текста\n", 600) // well over the chunk size
	if err := ch.SendMessage(42, long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.sent) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(fake.sent))
	}
	var rebuilt []string
	for _, msg := range fake.sent {
		if len(msg.Text) > 4000 {
			t.Fatalf("chunk exceeds limit: %d bytes", len(msg.Text))
		}
		rebuilt = append(rebuilt, msg.Text)
	}
	joined := strings.Join(rebuilt, "\n")
	if joined != long {
		t.Fatalf("chunks do not reassemble the original text")
	}
}

func TestNewChannelRequiresToken(t *testing.T) {
	if _, err := NewChannel(config.TelegramConfig{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without token")
	}
}
