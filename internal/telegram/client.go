// Package telegram provides a client for sending posture alerts via Telegram Bot API
// and for controlling the monitor through bot commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/postureguard/internal/control"
	"github.com/rewired-gh/postureguard/internal/logger"
	"github.com/rewired-gh/postureguard/internal/models"
)

// CommandHandler executes a parsed bot command and returns the reply text.
type CommandHandler func(ctx context.Context, cmd control.Command) (string, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// Only messages from the configured chat are accepted.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() || msg.Chat == nil {
					continue
				}
				if msg.Chat.ID != c.chatID {
					logger.Warn("Ignoring Telegram command from unknown chat %d", msg.Chat.ID)
					continue
				}
				c.reply(msg.Chat.ID, c.handleCommand(ctx, msg, handler))
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, handler CommandHandler) string {
	if msg.Command() == "ping" {
		return "Pong"
	}
	cmd, err := parseCommand(msg.Command(), msg.CommandArguments())
	if err != nil {
		return err.Error()
	}
	logger.Info("Telegram command: %s", cmd.Name)
	reply, err := handler(ctx, cmd)
	if err != nil {
		return fmt.Sprintf("Failed: %v", err)
	}
	return reply
}

func (c *Client) reply(chatID int64, text string) {
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logger.Warn("Failed to send Telegram reply: %v", err)
	}
}

// parseCommand maps a bot command and its arguments to a control command.
func parseCommand(name, args string) (control.Command, error) {
	args = strings.TrimSpace(args)
	switch strings.ToLower(name) {
	case "status":
		return control.Command{Name: control.CmdStatus}, nil
	case "start":
		return control.Command{Name: control.CmdStart}, nil
	case "stop":
		return control.Command{Name: control.CmdStop}, nil
	case "restart":
		return control.Command{Name: control.CmdRestart}, nil
	case "reset":
		return control.Command{Name: control.CmdReset}, nil
	case "calibrate":
		return control.Command{Name: control.CmdCalibrate}, nil
	case "poor":
		return withValue(control.CmdSetPoor, name, args)
	case "warning":
		return withValue(control.CmdSetWarn, name, args)
	case "roll":
		return withValue(control.CmdSetRoll, name, args)
	default:
		return control.Command{}, fmt.Errorf("unknown command /%s", name)
	}
}

func withValue(cmdName, name, args string) (control.Command, error) {
	if args == "" {
		return control.Command{}, fmt.Errorf("usage: /%s <degrees>", name)
	}
	v, err := strconv.ParseFloat(args, 64)
	if err != nil {
		return control.Command{}, fmt.Errorf("invalid number %q", args)
	}
	return control.Command{Name: cmdName, Value: &v}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempts: %w", i+1, ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// Notify sends a poor posture alert.
func (c *Client) Notify(ctx context.Context, alert models.AlertEvent) error {
	return c.sendMarkdownV2(ctx, formatAlert(alert))
}

// formatAlert formats an alert into a Telegram MarkdownV2 message.
func formatAlert(alert models.AlertEvent) string {
	var b strings.Builder
	b.WriteString("🚨 *Poor posture*\n\n")
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(alert.DetectedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "↕️ Pitch *%s°* \\(reference %s°\\)\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f", alert.Pitch)),
		escapeMarkdownV2(fmt.Sprintf("%.1f", alert.Baseline.ReferencePitch)))
	fmt.Fprintf(&b, "↔️ Roll *%s°* \\(reference %s°\\)\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f", alert.Roll)),
		escapeMarkdownV2(fmt.Sprintf("%.1f", alert.Baseline.ReferenceRoll)))
	fmt.Fprintf(&b, "⏱ For %s", escapeMarkdownV2(alert.Duration.Round(100*time.Millisecond).String()))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
