// Package notify はディール通知と価格アラートの配信を提供する。
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender は通知メッセージ送信のインターフェース。
type Sender interface {
	// SendMessage は指定チャットにテキストメッセージを送信する。
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// TelegramSender はTelegram Bot APIを使用したSender実装。
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender はBotトークンからTelegramSenderを生成する。
func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Telegram Botの初期化に失敗しました: %w", err)
	}
	return &TelegramSender{bot: bot}, nil
}

// SendMessage は指定チャットにテキストメッセージを送信する。
func (s *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("メッセージの送信に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Sender = (*TelegramSender)(nil)
