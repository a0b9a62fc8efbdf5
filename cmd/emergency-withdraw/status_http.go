package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

type walletStatus struct {
	Index    uint32 `json:"index"`
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Ether    string `json:"ether"`
	Selected bool   `json:"selected"`
}

type outcomeStatus struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Amount  string `json:"amount,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// setupStatusHTTP creates the read-only status server. It exposes no way to
// change the selection or start a sweep.
func setupStatusHTTP(cfg *config.Config, state *selection.State) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   "emergency-withdraw",
			"screen":    state.Screen().String(),
			"executing": state.IsExecuting(),
		})
	})

	mux.HandleFunc("GET /wallets", func(w http.ResponseWriter, r *http.Request) {
		wallets := state.Directory().Wallets()
		out := make([]walletStatus, 0, len(wallets))
		for _, wl := range wallets {
			balance := wl.Balance()
			out = append(out, walletStatus{
				Index:    wl.Index(),
				Address:  wl.Address().Hex(),
				Balance:  balance.String(),
				Ether:    blockchain.FormatEther(balance),
				Selected: state.IsSelected(wl.Address()),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"chain":    cfg.Chain.Name,
			"rescue":   cfg.Wallet.RescueAddress,
			"selected": state.SelectedCount(),
			"wallets":  out,
		})
	})

	mux.HandleFunc("GET /outcomes", func(w http.ResponseWriter, r *http.Request) {
		report := state.LastReport()
		if report == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sweep has run yet"})
			return
		}

		outcomes := report.Sorted()
		out := make([]outcomeStatus, 0, len(outcomes))
		for _, o := range outcomes {
			row := outcomeStatus{
				Index:   o.Index,
				Address: o.Address.Hex(),
				Status:  o.Status.String(),
				Reason:  o.Reason.String(),
				Error:   o.ErrorText(),
			}
			if o.Status == sweep.StatusSent && o.Amount != nil {
				row.Amount = o.Amount.String()
			}
			if o.Submitted() {
				row.TxHash = o.TxHash.Hex()
			}
			out = append(out, row)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":      report.RunID,
			"started_at":  report.StartedAt.Format(time.RFC3339),
			"finished_at": report.FinishedAt.Format(time.RFC3339),
			"total_sent":  report.TotalSent().String(),
			"outcomes":    out,
		})
	})

	return &http.Server{
		Addr:         cfg.Status.Listen,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("status", "Failed to encode response", map[string]any{"error": err.Error()})
	}
}
