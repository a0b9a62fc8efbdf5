package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

var ErrNotConfigured = errors.New("telegram notifier not configured")

// MessageSender is the part of *telego.Bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram posts sweep summaries to one chat.
type Telegram struct {
	sender MessageSender
	chatID int64
	chain  config.EVMChain
}

// NewTelegram builds a notifier backed by a telego bot.
func NewTelegram(cfg config.TelegramConfig, chain config.EVMChain) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, ErrNotConfigured
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, cfg.ChatID, chain), nil
}

func NewTelegramWithSender(sender MessageSender, chatID int64, chain config.EVMChain) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, chain: chain}
}

// Notify sends the summary of report.
func (t *Telegram) Notify(ctx context.Context, report *sweep.Report) error {
	if report == nil {
		return nil
	}
	_, err := t.sender.SendMessage(ctx, tu.Message(tu.ID(t.chatID), FormatReport(report, t.chain)))
	if err != nil {
		return fmt.Errorf("send telegram summary: %w", err)
	}
	return nil
}

// Hook adapts Notify to sweep.WithReportHook. Failures are logged.
func (t *Telegram) Hook() sweep.ReportHook {
	return func(ctx context.Context, report *sweep.Report) {
		if err := t.Notify(ctx, report); err != nil {
			logger.WarnCF("notify", "Telegram notification failed", map[string]any{
				"run_id": report.RunID,
				"error":  err.Error(),
			})
		}
	}
}

// FormatReport renders a plain-text summary of a sweep.
func FormatReport(report *sweep.Report, chain config.EVMChain) string {
	currency := chain.Currency
	if currency == "" {
		currency = "ETH"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Emergency withdraw run %s\n", report.RunID)
	if chain.Name != "" {
		fmt.Fprintf(&sb, "Network: %s\n", chain.Name)
	}
	fmt.Fprintf(&sb, "Rescue: %s\n", report.Rescue.Hex())
	fmt.Fprintf(&sb, "Sent %d, skipped %d, failed %d\n",
		report.Count(sweep.StatusSent), report.Count(sweep.StatusSkipped), report.Count(sweep.StatusFailed))
	fmt.Fprintf(&sb, "Total rescued: %s %s\n", blockchain.FormatEther(report.TotalSent()), currency)

	for _, o := range report.Sorted() {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "#%d %s %s", o.Index, o.Address.Hex(), o.Status)
		switch {
		case o.Status == sweep.StatusSent && o.Amount != nil:
			fmt.Fprintf(&sb, " %s %s", blockchain.FormatEther(o.Amount), currency)
		case o.Reason != sweep.ReasonNone:
			fmt.Fprintf(&sb, " (%s)", o.Reason)
		}
		if o.Submitted() {
			sb.WriteString("\n  ")
			sb.WriteString(txLink(chain, o.TxHash.Hex()))
		}
	}
	return sb.String()
}

func txLink(chain config.EVMChain, hash string) string {
	if chain.Explorer == "" {
		return hash
	}
	return strings.TrimRight(chain.Explorer, "/") + "/tx/" + hash
}
