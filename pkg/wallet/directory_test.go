package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
)

// Well-known development mnemonic; its first accounts are public test vectors.
const testMnemonic = "test test test test test test test test test test test junk"

var knownAddresses = []common.Address{
	common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
	common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
}

func TestDerive_KnownVectors(t *testing.T) {
	dir, err := Derive(testMnemonic, "", len(knownAddresses))
	require.NoError(t, err)
	require.Equal(t, len(knownAddresses), dir.Len())

	for i, want := range knownAddresses {
		w := dir.At(i)
		require.NotNil(t, w)
		assert.Equal(t, uint32(i), w.Index())
		assert.Equal(t, want, w.Address(), "index %d", i)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a, err := Derive(testMnemonic, "pass", 10)
	require.NoError(t, err)
	b, err := Derive("  test test test test test test\ttest test test test test junk ", "pass", 10)
	require.NoError(t, err)

	assert.Equal(t, a.Addresses(), b.Addresses())
}

func TestDerive_PassphraseChangesAddresses(t *testing.T) {
	plain, err := Derive(testMnemonic, "", 1)
	require.NoError(t, err)
	salted, err := Derive(testMnemonic, "extra words", 1)
	require.NoError(t, err)

	assert.NotEqual(t, plain.At(0).Address(), salted.At(0).Address())
}

func TestDerive_Unique(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 200)
	require.NoError(t, err)

	seen := make(map[common.Address]int)
	for i, addr := range dir.Addresses() {
		prev, dup := seen[addr]
		require.False(t, dup, "index %d collides with %d", i, prev)
		seen[addr] = i
	}
}

func TestDerive_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		count    int
		wantErr  error
	}{
		{name: "zero count", mnemonic: testMnemonic, count: 0, wantErr: ErrInvalidWalletCount},
		{name: "negative count", mnemonic: testMnemonic, count: -3, wantErr: ErrInvalidWalletCount},
		{name: "wrong word count", mnemonic: "test test test", count: 1, wantErr: ErrInvalidMnemonic},
		{name: "bad checksum", mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", count: 1, wantErr: ErrInvalidMnemonic},
		{name: "unknown word", mnemonic: "test test test test test test test test test test test zzzz", count: 1, wantErr: ErrInvalidMnemonic},
		{name: "empty", mnemonic: "", count: 1, wantErr: ErrInvalidMnemonic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(tt.mnemonic, "", tt.count)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDerivation)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDirectory_Lookup(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 3)
	require.NoError(t, err)

	w, ok := dir.Lookup(knownAddresses[1])
	require.True(t, ok)
	assert.Same(t, dir.At(1), w)

	_, ok = dir.Lookup(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	assert.False(t, ok)
	assert.Nil(t, dir.At(3))
	assert.Nil(t, dir.At(-1))
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	failing  map[common.Address]bool
	calls    int
}

func (f *fakeBalances) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing[addr] {
		return nil, fmt.Errorf("%w: %s", blockchain.ErrBalanceQuery, "timeout")
	}
	if b, ok := f.balances[addr]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func TestDirectory_RefreshBalances(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 3)
	require.NoError(t, err)

	dir.At(2).SetBalance(big.NewInt(555))

	src := &fakeBalances{
		balances: map[common.Address]*big.Int{
			knownAddresses[0]: big.NewInt(100000),
			knownAddresses[1]: big.NewInt(7),
		},
		failing: map[common.Address]bool{knownAddresses[2]: true},
	}

	err = dir.RefreshBalances(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, blockchain.ErrBalanceQuery)
	assert.Equal(t, 3, src.calls)

	assert.Equal(t, int64(100000), dir.At(0).Balance().Int64())
	assert.Equal(t, int64(7), dir.At(1).Balance().Int64())
	assert.Equal(t, int64(555), dir.At(2).Balance().Int64(), "failed refresh keeps cached value")
	assert.False(t, dir.At(0).BalanceUpdatedAt().IsZero())

	total := dir.TotalBalance([]common.Address{knownAddresses[0], knownAddresses[1], common.Address{}})
	assert.Equal(t, int64(100007), total.Int64())
}

func TestDirectory_BalanceOfWrapsErrors(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 1)
	require.NoError(t, err)

	_, err = dir.BalanceOf(context.Background(), balanceFunc(func() error { return errors.New("eof") }), dir.At(0))
	assert.ErrorIs(t, err, blockchain.ErrBalanceQuery)
}

type balanceFunc func() error

func (f balanceFunc) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return nil, f()
}

func TestWallet_NeverExposesKey(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 1)
	require.NoError(t, err)
	w := dir.At(0)
	w.SetBalance(big.NewInt(42))

	// Private key of the first test account.
	const keyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	for _, s := range []string{fmt.Sprintf("%v", w), fmt.Sprintf("%+v", w), fmt.Sprintf("%#v", w), w.String()} {
		assert.NotContains(t, s, keyHex)
		assert.Contains(t, s, w.Address().Hex())
	}

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.NotContains(t, string(data), keyHex)
	assert.JSONEq(t, `{"index":0,"address":"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266","balance":"42"}`, string(data))
}

func TestWallet_Signer(t *testing.T) {
	dir, err := Derive(testMnemonic, "", 2)
	require.NoError(t, err)
	w := dir.At(1)

	tx := types.NewTransaction(0, knownAddresses[0], big.NewInt(1), 21000, big.NewInt(1), nil)
	signed, err := w.Signer()(context.Background(), 31337, tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(31337)), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
}
