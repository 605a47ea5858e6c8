package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rl1809/prepfire/internal/core/domain"
)

const telegramMessageLimit = 4096

// TelegramNotifier posts the alert summary to a kitchen chat. Tenants without
// their own chat fall back to the default one.
type TelegramNotifier struct {
	api         *tgbotapi.BotAPI
	defaultChat int64
	tenantChats map[string]int64
	log         *slog.Logger
}

func NewTelegramNotifier(token string, defaultChat int64, tenantChats map[string]int64, log *slog.Logger) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, http.DefaultClient, defaultChat, tenantChats, log)
}

func newTelegramNotifier(token, endpoint string, client tgbotapi.HTTPClient, defaultChat int64, tenantChats map[string]int64, log *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n := &TelegramNotifier{
		api:         api,
		defaultChat: defaultChat,
		tenantChats: tenantChats,
		log:         log.With("component", "telegram_notifier"),
	}
	n.log.Info("telegram bot ready", "bot", api.Self.UserName)
	return n, nil
}

func (n *TelegramNotifier) chatFor(tenantID string) int64 {
	if id, ok := n.tenantChats[tenantID]; ok {
		return id
	}
	return n.defaultChat
}

func (n *TelegramNotifier) SendDailyAlert(ctx context.Context, alert domain.DailyAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := n.chatFor(alert.TenantID)
	if chat == 0 {
		return fmt.Errorf("no telegram chat for tenant %s", alert.TenantID)
	}

	text := alert.Summary
	if len(text) > telegramMessageLimit {
		text = text[:telegramMessageLimit-4] + "\n..."
	}

	sent, err := n.api.Send(tgbotapi.NewMessage(chat, text))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.log.Debug("daily alert posted", "tenant_id", alert.TenantID, "chat_id", chat, "message_id", sent.MessageID)
	return nil
}
