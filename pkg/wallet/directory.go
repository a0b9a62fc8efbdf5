package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
)

// DefaultPath is the BIP-44 Ethereum account path; wallet i lives at DefaultPath/i.
const DefaultPath = "m/44'/60'/0'/0"

const refreshConcurrency = 8

var accountPath = []uint32{
	hdkeychain.HardenedKeyStart + 44, // purpose
	hdkeychain.HardenedKeyStart + 60, // coin type: ether
	hdkeychain.HardenedKeyStart + 0,  // account
	0,                                // external chain
}

// BalanceSource is the chain-client capability needed to refresh balances.
type BalanceSource interface {
	BalanceOf(ctx context.Context, address common.Address) (*big.Int, error)
}

// Directory is the fixed, ordered list of wallets derived for a session.
// Its length never changes; cached balances may be refreshed concurrently.
type Directory struct {
	wallets   []*Wallet
	byAddress map[common.Address]*Wallet
}

// Derive builds count wallets from mnemonic and the optional passphrase.
// The same inputs always produce the same addresses in the same order.
func Derive(mnemonic, passphrase string, count int) (*Directory, error) {
	if count < 1 || int64(count) > math.MaxInt32+1 {
		return nil, fmt.Errorf("%w: %w: got %d", ErrDerivation, ErrInvalidWalletCount, count)
	}

	phrase := strings.Join(strings.Fields(mnemonic), " ")
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivation, ErrInvalidMnemonic)
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %w", ErrDerivation, err)
	}

	account := master
	for _, child := range accountPath {
		account, err = account.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("%w: account key: %w", ErrDerivation, err)
		}
	}

	dir := &Directory{
		wallets:   make([]*Wallet, 0, count),
		byAddress: make(map[common.Address]*Wallet, count),
	}

	for i := 0; i < count; i++ {
		w, err := deriveWallet(account, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("%w: index %d: %w", ErrDerivation, i, err)
		}
		if _, dup := dir.byAddress[w.address]; dup {
			return nil, fmt.Errorf("%w: index %d collides with an earlier address", ErrDerivation, i)
		}
		dir.wallets = append(dir.wallets, w)
		dir.byAddress[w.address] = w
	}

	logger.InfoCF("wallet", "Wallets derived", map[string]any{
		"count": count,
		"path":  DefaultPath,
	})

	return dir, nil
}

func deriveWallet(account *hdkeychain.ExtendedKey, index uint32) (*Wallet, error) {
	child, err := account.Derive(index)
	if err != nil {
		return nil, err
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, err
	}

	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, err
	}

	return newWallet(index, key, crypto.PubkeyToAddress(key.PublicKey)), nil
}

// Len returns the number of wallets.
func (d *Directory) Len() int {
	return len(d.wallets)
}

// At returns the wallet at position i or nil when out of range.
func (d *Directory) At(i int) *Wallet {
	if i < 0 || i >= len(d.wallets) {
		return nil
	}
	return d.wallets[i]
}

// Lookup finds a wallet by address.
func (d *Directory) Lookup(address common.Address) (*Wallet, bool) {
	w, ok := d.byAddress[address]
	return w, ok
}

// Wallets returns the wallets in derivation order. The slice is fresh; the
// wallets are shared.
func (d *Directory) Wallets() []*Wallet {
	out := make([]*Wallet, len(d.wallets))
	copy(out, d.wallets)
	return out
}

// Addresses returns every address in derivation order.
func (d *Directory) Addresses() []common.Address {
	out := make([]common.Address, len(d.wallets))
	for i, w := range d.wallets {
		out[i] = w.address
	}
	return out
}

// TotalBalance sums the cached balances of the given addresses. Unknown
// addresses are ignored.
func (d *Directory) TotalBalance(addresses []common.Address) *big.Int {
	total := new(big.Int)
	for _, addr := range addresses {
		if w, ok := d.byAddress[addr]; ok {
			total.Add(total, w.Balance())
		}
	}
	return total
}

// BalanceOf queries the live balance of w. Failures wrap
// blockchain.ErrBalanceQuery and leave the cached value untouched.
func (d *Directory) BalanceOf(ctx context.Context, src BalanceSource, w *Wallet) (*big.Int, error) {
	balance, err := src.BalanceOf(ctx, w.address)
	if err != nil {
		if !errors.Is(err, blockchain.ErrBalanceQuery) {
			err = fmt.Errorf("%w: %w", blockchain.ErrBalanceQuery, err)
		}
		return nil, err
	}
	w.SetBalance(balance)
	return balance, nil
}

// RefreshBalances updates every cached balance in parallel. A failed lookup
// keeps that wallet's previous value; all failures are returned joined.
func (d *Directory) RefreshBalances(ctx context.Context, src BalanceSource) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(refreshConcurrency)

	for _, w := range d.wallets {
		g.Go(func() error {
			if _, err := d.BalanceOf(ctx, src, w); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if len(errs) > 0 {
		logger.WarnCF("wallet", "Balance refresh incomplete", map[string]any{
			"failed": len(errs),
			"total":  len(d.wallets),
		})
	}
	return errors.Join(errs...)
}
