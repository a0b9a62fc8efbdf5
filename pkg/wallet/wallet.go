package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
)

// Wallet is one derived account. The private key never leaves this type:
// callers get an address for display and a SignerFunc for one transfer.
type Wallet struct {
	index   uint32
	address common.Address
	key     *ecdsa.PrivateKey

	mu        sync.RWMutex
	balance   *big.Int
	updatedAt time.Time
}

func newWallet(index uint32, key *ecdsa.PrivateKey, address common.Address) *Wallet {
	return &Wallet{
		index:   index,
		address: address,
		key:     key,
		balance: new(big.Int),
	}
}

// Index returns the derivation index.
func (w *Wallet) Index() uint32 {
	return w.index
}

// Address returns the derived address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Balance returns a copy of the last observed balance in wei.
func (w *Wallet) Balance() *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return new(big.Int).Set(w.balance)
}

// BalanceUpdatedAt returns when the cached balance was last refreshed.
func (w *Wallet) BalanceUpdatedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updatedAt
}

// SetBalance replaces the cached balance.
func (w *Wallet) SetBalance(balance *big.Int) {
	if balance == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = new(big.Int).Set(balance)
	w.updatedAt = time.Now()
}

// Signer returns an EIP-155 signer bound to this wallet's key.
func (w *Wallet) Signer() blockchain.SignerFunc {
	return func(ctx context.Context, chainID int64, tx *types.Transaction) (*types.Transaction, error) {
		signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(chainID)), w.key)
		if err != nil {
			return nil, fmt.Errorf("sign with wallet %d: %w", w.index, err)
		}
		return signed, nil
	}
}

func (w *Wallet) String() string {
	return fmt.Sprintf("#%d %s", w.index, w.address.Hex())
}

// GoString keeps %#v from dumping the key.
func (w *Wallet) GoString() string {
	return fmt.Sprintf("wallet.Wallet{Index:%d, Address:%s}", w.index, w.address.Hex())
}

type walletJSON struct {
	Index   uint32         `json:"index"`
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
}

func (w *Wallet) MarshalJSON() ([]byte, error) {
	return json.Marshal(walletJSON{
		Index:   w.index,
		Address: w.address,
		Balance: w.Balance().String(),
	})
}
