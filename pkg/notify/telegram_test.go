package notify

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

type fakeSender struct {
	sent []*telego.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

var (
	rescue = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	addrA  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	addrB  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	txHash = common.HexToHash("0x01")
)

func report() *sweep.Report {
	return &sweep.Report{
		RunID:  "run-42",
		Rescue: rescue,
		Outcomes: map[common.Address]sweep.Outcome{
			addrB: {Index: 1, Address: addrB, Status: sweep.StatusSkipped, Reason: sweep.ReasonInsufficientFunds},
			addrA: {Index: 0, Address: addrA, Status: sweep.StatusSent, Amount: big.NewInt(1_500_000_000_000_000_000), TxHash: txHash},
		},
	}
}

func TestFormatReport(t *testing.T) {
	chain := config.EVMChain{Name: "Sepolia", Currency: "SEP", Explorer: "https://sepolia.etherscan.io/"}

	text := FormatReport(report(), chain)

	assert.Contains(t, text, "run-42")
	assert.Contains(t, text, "Network: Sepolia")
	assert.Contains(t, text, "Rescue: "+rescue.Hex())
	assert.Contains(t, text, "Sent 1, skipped 1, failed 0")
	assert.Contains(t, text, "Total rescued: 1.5 SEP")
	assert.Contains(t, text, "#0 "+addrA.Hex()+" sent 1.5 SEP")
	assert.Contains(t, text, "#1 "+addrB.Hex()+" skipped (insufficient funds)")
	assert.Contains(t, text, "https://sepolia.etherscan.io/tx/"+txHash.Hex())
	assert.Less(t, strings.Index(text, "#0 "), strings.Index(text, "#1 "), "outcomes in derivation order")
}

func TestFormatReport_Defaults(t *testing.T) {
	text := FormatReport(report(), config.EVMChain{})

	assert.NotContains(t, text, "Network:")
	assert.Contains(t, text, "1.5 ETH")
	assert.Contains(t, text, "  "+txHash.Hex())
}

func TestNotify(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramWithSender(sender, 777, config.EVMChain{})

	require.NoError(t, n.Notify(context.Background(), report()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(777), sender.sent[0].ChatID.ID)
	assert.Contains(t, sender.sent[0].Text, "run-42")

	require.NoError(t, n.Notify(context.Background(), nil))
	assert.Len(t, sender.sent, 1)
}

func TestNotify_SendError(t *testing.T) {
	logger.Discard()
	sender := &fakeSender{err: errors.New("forbidden")}
	n := NewTelegramWithSender(sender, 1, config.EVMChain{})

	err := n.Notify(context.Background(), report())
	assert.ErrorContains(t, err, "forbidden")

	assert.NotPanics(t, func() { n.Hook()(context.Background(), report()) })
}

func TestNewTelegram_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelegramConfig
	}{
		{name: "no token", cfg: config.TelegramConfig{Enabled: true, ChatID: 1}},
		{name: "no chat", cfg: config.TelegramConfig{Enabled: true, Token: "123:abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTelegram(tt.cfg, config.EVMChain{})
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}
