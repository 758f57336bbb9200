// Package bot bridges Telegram chats to the ask pipeline. Each Telegram
// chat maps to one conversation, keyed by the decimal chat id, so history
// and memory behave exactly as they do for web clients.
package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const greeting = "Hi! I am your QA bot. Ask me anything."

// Asker answers a question within a conversation. Satisfied by llm.Service.
type Asker interface {
	Ask(ctx context.Context, conversationID, question string) (string, error)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	send   func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	asker  Asker
	logger *zap.Logger
}

// New connects to the Telegram bot API with the given token.
func New(token string, asker Asker, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Bot{
		api:    api,
		send:   api.Send,
		asker:  asker,
		logger: logger,
	}, nil
}

// Run polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot polling", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	reply := b.replyTo(ctx, msg)
	if reply == "" {
		return
	}

	if _, err := b.send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.Error("failed to send telegram reply",
			zap.Error(err),
			zap.Int64("chat_id", msg.Chat.ID))
	}
}

// replyTo produces the reply text for one incoming message. Unknown
// commands are ignored.
func (b *Bot) replyTo(ctx context.Context, msg *tgbotapi.Message) string {
	if msg.IsCommand() {
		if msg.Command() == "start" {
			return greeting
		}
		return ""
	}

	conversationID := strconv.FormatInt(msg.Chat.ID, 10)
	answer, err := b.asker.Ask(ctx, conversationID, msg.Text)
	if err != nil {
		b.logger.Error("failed to answer telegram question",
			zap.Error(err),
			zap.String("conversation_id", conversationID))
		return fmt.Sprintf("Error: %v", err)
	}
	return answer
}
