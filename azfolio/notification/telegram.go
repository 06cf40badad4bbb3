package notification

import (
	"errors"
	"fmt"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ezquant/azfolio/azfolio/tools/log"
)

// Notifier receives messages about finished training sessions.
type Notifier interface {
	Notify(string)
	OnError(err error)
}

type TelegramSettings struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"`
	Users   []int64 `yaml:"users"`
	// URL overrides the Bot API endpoint.
	URL string `yaml:"url,omitempty"`
}

type telegram struct {
	client *tb.Bot
	users  []int64
}

// NewTelegram creates a notifier that sends every message to the configured users.
func NewTelegram(settings TelegramSettings) (Notifier, error) {
	if settings.Token == "" {
		return nil, errors.New("telegram: missing token")
	}
	if len(settings.Users) == 0 {
		return nil, errors.New("telegram: no users to notify")
	}

	client, err := tb.NewBot(tb.Settings{
		URL:       settings.URL,
		Token:     settings.Token,
		ParseMode: tb.ModeMarkdown,
		Poller:    &tb.LongPoller{Timeout: 10 * time.Second},
		Offline:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &telegram{
		client: client,
		users:  settings.Users,
	}, nil
}

func (t telegram) Notify(text string) {
	for _, user := range t.users {
		if _, err := t.client.Send(tb.ChatID(user), text); err != nil {
			log.WithError(err).Errorf("telegram: notify user %d", user)
		}
	}
}

func (t telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("🛑 *ERROR*\n`%s`", err.Error()))
}
