package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/journal"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

const testMnemonic = "test test test test test test test test test test test junk"

// stubSweeper marks every wallet sent except the ones listed in failing.
type stubSweeper struct {
	calls   int
	failing map[uint32]bool
}

func (s *stubSweeper) Execute(ctx context.Context, wallets []*wallet.Wallet) *sweep.Report {
	s.calls++
	r := &sweep.Report{RunID: "test-run", Outcomes: make(map[common.Address]sweep.Outcome)}
	for _, w := range wallets {
		o := sweep.Outcome{Index: w.Index(), Address: w.Address(), Status: sweep.StatusSent, Amount: big.NewInt(1000)}
		if s.failing[w.Index()] {
			o = sweep.Outcome{Index: w.Index(), Address: w.Address(), Status: sweep.StatusFailed,
				Reason: sweep.ReasonNetworkError, Err: errors.New("timeout")}
		}
		r.Outcomes[w.Address()] = o
	}
	return r
}

func newTestState(t *testing.T, n int, sw selection.Sweeper) *selection.State {
	t.Helper()
	dir, err := wallet.Derive(testMnemonic, "", n)
	require.NoError(t, err)
	return selection.New(dir, sw)
}

func TestMain(m *testing.M) {
	logger.Discard()
	os.Exit(m.Run())
}

func TestSelectWallets(t *testing.T) {
	tests := []struct {
		name    string
		opts    sweepOptions
		want    int
		wantErr bool
	}{
		{name: "all", opts: sweepOptions{all: true}, want: 4},
		{name: "indexes", opts: sweepOptions{indexes: []int{0, 2}}, want: 2},
		{name: "repeated index", opts: sweepOptions{indexes: []int{1, 1}}, want: 1},
		{name: "out of range", opts: sweepOptions{indexes: []int{9}}, wantErr: true},
		{name: "negative", opts: sweepOptions{indexes: []int{-1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newTestState(t, 4, &stubSweeper{})
			err := selectWallets(state, &tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.SelectedCount())
		})
	}
}

func TestConfirmSweep(t *testing.T) {
	t.Run("without yes nothing runs", func(t *testing.T) {
		sw := &stubSweeper{}
		state := newTestState(t, 2, sw)
		state.ToggleAll()

		assert.Nil(t, confirmSweep(context.Background(), state, false))
		assert.Equal(t, 0, sw.calls)
		assert.Equal(t, selection.ScreenMain, state.Screen())
	})

	t.Run("with yes", func(t *testing.T) {
		sw := &stubSweeper{failing: map[uint32]bool{1: true}}
		state := newTestState(t, 2, sw)
		state.ToggleAll()

		report := confirmSweep(context.Background(), state, true)
		require.NotNil(t, report)
		assert.Equal(t, 1, sw.calls)
		assert.Equal(t, 1, report.Count(sweep.StatusFailed))

		var buf bytes.Buffer
		printReport(&buf, report, config.EVMChain{Currency: "ETH"})
		assert.Contains(t, buf.String(), "Run test-run")
		assert.Contains(t, buf.String(), "network error timeout")
		assert.Contains(t, buf.String(), "Sent 1, skipped 0, failed 1")
	})
}

func TestPrintWallets(t *testing.T) {
	dir, err := wallet.Derive(testMnemonic, "", 2)
	require.NoError(t, err)
	dir.At(0).SetBalance(big.NewInt(2_000_000_000_000_000_000))

	var buf bytes.Buffer
	printWallets(&buf, dir, config.EVMChain{Currency: "BNB"})

	assert.Contains(t, buf.String(), dir.At(0).Address().Hex())
	assert.Contains(t, buf.String(), "2 BNB")
	assert.Contains(t, buf.String(), "total")
}

func TestStatusHTTP(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Wallet.RescueAddress = "0x000000000000000000000000000000000000dEaD"
	state := newTestState(t, 3, &stubSweeper{})
	state.Toggle(state.Directory().At(1).Address())

	srv := httptest.NewServer(setupStatusHTTP(cfg, state).Handler)
	defer srv.Close()

	get := func(path string) (*http.Response, map[string]any) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp, body
	}

	resp, body := get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "main", body["screen"])

	resp, body = get("/wallets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["selected"])
	wallets, ok := body["wallets"].([]any)
	require.True(t, ok)
	require.Len(t, wallets, 3)
	second := wallets[1].(map[string]any)
	assert.Equal(t, true, second["selected"])
	assert.Equal(t, "0", second["balance"])

	resp, _ = get("/outcomes")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	state.EnterConfirm()
	state.Confirm(context.Background())

	resp, body = get("/outcomes")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test-run", body["run_id"])
	assert.Equal(t, "1000", body["total_sent"])

	post, err := http.Post(srv.URL+"/wallets", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestOnboard(t *testing.T) {
	t.Setenv("PHRASE_MNEMONIC", testMnemonic)
	t.Setenv("TO_ADDRESS", "0x000000000000000000000000000000000000dEaD")
	path := filepath.Join(t.TempDir(), "cfg", "config.json")

	cmd := newOnboardCommand(&rootOptions{configPath: path})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "junk", "seed never written")
	assert.Contains(t, string(data), "0x000000000000000000000000000000000000dEaD")
	assert.Contains(t, out.String(), "Created config")

	out.Reset()
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "already exists")
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "emergency-withdraw dev")
}

func TestStopWhenIdle(t *testing.T) {
	t.Run("idle stops right away", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var stops atomic.Int32
		stopWhenIdle(ctx, func() bool { return false }, func() { stops.Add(1) }, time.Millisecond)
		assert.Equal(t, int32(1), stops.Load())
	})

	t.Run("signal during sweep waits for it", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var busy atomic.Bool
		busy.Store(true)

		stopped := make(chan struct{})
		go stopWhenIdle(ctx, busy.Load, func() { close(stopped) }, time.Millisecond)

		cancel()
		select {
		case <-stopped:
			t.Fatal("stopped while the sweep was still running")
		case <-time.After(50 * time.Millisecond):
		}

		busy.Store(false)
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("interrupt was dropped after the sweep settled")
		}
	})
}

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	t.Setenv("JOURNAL_PATH", dbPath)

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	dir, err := wallet.Derive(testMnemonic, "", 2)
	require.NoError(t, err)
	first, second := dir.At(0), dir.At(1)
	started := time.Now().Add(-time.Minute)
	require.NoError(t, j.Record(context.Background(), &sweep.Report{
		RunID:      "run-42",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Outcomes: map[common.Address]sweep.Outcome{
			first.Address(): {Index: 0, Address: first.Address(), Status: sweep.StatusSent,
				Amount: big.NewInt(1_000_000_000_000_000_000), TxHash: common.HexToHash("0xbeef")},
			second.Address(): {Index: 1, Address: second.Address(), Status: sweep.StatusSkipped,
				Reason: sweep.ReasonInsufficientFunds},
		},
	}))
	require.NoError(t, j.Close())

	run := func(args ...string) (string, error) {
		cmd := newHistoryCommand(&rootOptions{configPath: filepath.Join(t.TempDir(), "missing.json")})
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run()
	require.NoError(t, err)
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "1 ETH")

	out, err = run("--run", "run-42")
	require.NoError(t, err)
	assert.Contains(t, out, first.Address().Hex())
	assert.Contains(t, out, common.HexToHash("0xbeef").Hex())
	assert.Contains(t, out, "insufficient funds")

	_, err = run("--run", "nope")
	assert.Error(t, err)
}

func TestHistoryCommand_Empty(t *testing.T) {
	t.Setenv("JOURNAL_PATH", filepath.Join(t.TempDir(), "journal.db"))

	cmd := newHistoryCommand(&rootOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "No sweeps recorded yet")
}
