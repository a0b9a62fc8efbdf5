package journal

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

var (
	rescue = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	addrA  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	addrB  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	addrC  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleReport(runID string, started time.Time) *sweep.Report {
	return &sweep.Report{
		RunID:      runID,
		Rescue:     rescue,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Outcomes: map[common.Address]sweep.Outcome{
			addrA: {
				Index: 0, Address: addrA, Status: sweep.StatusSent,
				Balance: big.NewInt(100000), FeePrice: big.NewInt(1), Amount: big.NewInt(79000),
				TxHash: common.HexToHash("0xabc"),
			},
			addrB: {
				Index: 1, Address: addrB, Status: sweep.StatusSkipped, Reason: sweep.ReasonInsufficientFunds,
				Balance: big.NewInt(0), FeePrice: big.NewInt(1),
			},
			addrC: {
				Index: 2, Address: addrC, Status: sweep.StatusFailed, Reason: sweep.ReasonNetworkError,
				Err: errors.New("connection refused"),
			},
		},
	}
}

func TestRecordAndReadBack(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	started := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, j.Record(ctx, sampleReport("run-1", started)))

	entries, err := j.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, addrA, entries[0].Address)
	assert.Equal(t, "sent", entries[0].Status)
	assert.Equal(t, "79000", entries[0].Amount)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), entries[0].TxHash)

	assert.Equal(t, uint32(1), entries[1].Index)
	assert.Equal(t, "skipped", entries[1].Status)
	assert.Equal(t, "insufficient funds", entries[1].Reason)
	assert.Empty(t, entries[1].TxHash)
	assert.Empty(t, entries[1].Amount)

	assert.Equal(t, "failed", entries[2].Status)
	assert.Equal(t, "connection refused", entries[2].Error)
	assert.Empty(t, entries[2].Balance)

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, rescue, runs[0].Rescue)
	assert.Equal(t, 1, runs[0].Sent)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, int64(79000), runs[0].TotalSent.Int64())
	assert.True(t, runs[0].StartedAt.Equal(started))
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"old", "middle", "new"} {
		require.NoError(t, j.Record(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := j.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "middle", runs[1].RunID)
}

func TestRecord_DuplicateRunRollsBack(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	report := sampleReport("dup", time.Now())

	require.NoError(t, j.Record(ctx, report))
	require.Error(t, j.Record(ctx, report))

	entries, err := j.Outcomes(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, sampleReport("persisted", time.Now())))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].RunID)
}

func TestClosedJournal(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Record(context.Background(), sampleReport("x", time.Now())), ErrClosed)
	_, err := j.Runs(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = j.Outcomes(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, j.Close())
}

func TestHook(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	j.Hook()(ctx, sampleReport("hooked", time.Now()))

	entries, err := j.Outcomes(ctx, "hooked")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
