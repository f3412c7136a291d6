package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
	"dispatch-watch/internal/utils"
)

// maxTelegramRows keeps a message under Telegram's 4096 character limit.
const maxTelegramRows = 40

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram mirrors escalation alerts to one or more chats.
type Telegram struct {
	sender  messageSender
	chatIDs []int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegram(token string, chatIDs []int64, ratePerSecond int, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing Telegram bot token")
	}
	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("missing Telegram chat ids")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, chatIDs, ratePerSecond, logger), nil
}

func newTelegram(sender messageSender, chatIDs []int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Telegram{
		sender:  sender,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
	}
}

// Send posts the alert as plain text to every configured chat.
func (t *Telegram) Send(ctx context.Context, n models.Notification) error {
	text := FormatText(n)
	for _, chatID := range t.chatIDs {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit exceeded: %w", err)
		}
		err := utils.Retry(ctx, t.logger, 3, time.Second, func() error {
			params := &bot.SendMessageParams{ChatID: chatID, Text: text}
			if _, err := t.sender.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FormatText renders n as a plain-text message.
func FormatText(n models.Notification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s, %d tasks)\n", n.Subject, n.Stage, len(n.Tasks))
	for i, task := range n.Tasks {
		if i == maxTelegramRows {
			fmt.Fprintf(&sb, "... and %d more\n", len(n.Tasks)-i)
			break
		}
		fmt.Fprintf(&sb, "\n%s | %s | %s | %s | %s | %s",
			task.ID, task.PrimaryObjects, task.OwningGroup, task.ServiceName, task.CurrentState, task.AgeFormatted)
	}
	return sb.String()
}
