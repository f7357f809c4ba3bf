package notify

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink sends notifications to a Telegram group topic.
type TelegramSink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	topicID int
	silent  bool
	log     *slog.Logger
}

// NewTelegramSink creates a sink for the configured group chat and topic.
func NewTelegramSink(token string, chatID int64, topicID int, silent bool, log *slog.Logger) (*TelegramSink, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{
		bot:     bot,
		chatID:  chatID,
		topicID: topicID,
		silent:  silent,
		log:     log.With("component", "telegram"),
	}, nil
}

// Notify sends a message to the group topic. Failures are logged, never returned.
// The message goes through the raw request path: the library's typed configs
// predate forum topics, so message_thread_id has to be set as a bare parameter.
func (s *TelegramSink) Notify(ctx context.Context, scope Scope, message string, silent bool) {
	if _, err := s.bot.MakeRequest("sendMessage", s.messageParams(message, silent)); err != nil {
		s.log.Error("notification failed", "scope", scope, "error", err)
		return
	}
	s.log.Debug("notification sent", "scope", scope)
}

func (s *TelegramSink) messageParams(message string, silent bool) tgbotapi.Params {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", s.chatID)
	params.AddNonEmpty("text", message)
	params.AddNonZero("message_thread_id", s.topicID)
	params.AddBool("disable_notification", silent || s.silent)
	return params
}
