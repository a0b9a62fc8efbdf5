package tui

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

const helpMain = "q quit  ↑/↓ move  enter toggle  a all  t transfer  r refresh"

func currency(chain config.EVMChain) string {
	if chain.Currency == "" {
		return "ETH"
	}
	return chain.Currency
}

func amount(v *big.Int, chain config.EVMChain) string {
	return blockchain.FormatEther(v) + " " + currency(chain)
}

// footerText renders the summary line under the wallet table.
func footerText(s *selection.State, chain config.EVMChain, rescue common.Address, status string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Selected: [yellow]%d[-]/%d   Total: [yellow]%s[-]   Rescue: [green]%s[-]",
		s.SelectedCount(), s.Directory().Len(), amount(s.SelectedBalance(), chain), rescue.Hex())
	if chain.Name != "" {
		fmt.Fprintf(&sb, "   Network: %s", chain.Name)
	}
	sb.WriteString("\n[gray]" + helpMain + "[-]")
	if status != "" {
		sb.WriteString("   " + status)
	}
	return sb.String()
}

// confirmText renders the Yes/No gate, or progress while a run is in flight.
func confirmText(s *selection.State, chain config.EVMChain, rescue common.Address, executing bool) string {
	if executing {
		return fmt.Sprintf("\nSweeping %d wallet(s) to\n%s\n\nwaiting for every transfer to settle...",
			s.SelectedCount(), rescue.Hex())
	}

	yes, no := " Yes ", " No "
	if s.Choice() == selection.ChoiceYes {
		yes = "[black:green]" + yes + "[-:-]"
	} else {
		no = "[black:red]" + no + "[-:-]"
	}
	return fmt.Sprintf("\nTransfer everything from %d wallet(s) (%s) to\n%s ?\n\n%s    %s\n\n[gray]←/→ choose  enter confirm  esc cancel[-]",
		s.SelectedCount(), amount(s.SelectedBalance(), chain), rescue.Hex(), yes, no)
}

// outcomeRow returns the table columns for one outcome.
func outcomeRow(o sweep.Outcome, chain config.EVMChain) []string {
	detail := ""
	switch {
	case o.Submitted():
		detail = o.TxHash.Hex()
	case o.Reason != sweep.ReasonNone:
		detail = o.Reason.String()
	}
	if o.Err != nil && o.Status == sweep.StatusFailed {
		detail = strings.TrimSpace(detail + " " + o.ErrorText())
	}

	sent := ""
	if o.Status == sweep.StatusSent && o.Amount != nil {
		sent = amount(o.Amount, chain)
	}
	return []string{
		fmt.Sprintf("%d", o.Index),
		o.Address.Hex(),
		o.Status.String(),
		sent,
		detail,
	}
}

func reportTitle(r *sweep.Report, chain config.EVMChain) string {
	return fmt.Sprintf(" Run %s: %d sent, %d skipped, %d failed, %s rescued (any key to continue) ",
		r.RunID, r.Count(sweep.StatusSent), r.Count(sweep.StatusSkipped), r.Count(sweep.StatusFailed),
		amount(r.TotalSent(), chain))
}
