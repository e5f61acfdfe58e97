package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/links"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// PrintError writes err in red.
func PrintError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "\nError: %v\n\n", err)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) rule(title string, paint func(...any) string) {
	fmt.Fprintln(a.Out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintf(a.Out, "%s\n", paint(fmt.Sprintf("%*s", 30+len(title)/2, title)))
	fmt.Fprintln(a.Out, strings.Repeat("=", 60))
}

func (a *App) printSession(s wallet.Session) {
	fmt.Fprintf(a.Out, "%s Connected %s on chain %d\n", green("✓"), cyan(s.Address.Hex()), s.ChainID)
	fmt.Fprintf(a.Out, "  Explorer: %s\n", ethereum.ExplorerAddressURL(s.ChainID, s.Address))
}

func (a *App) printQuote(q *swap.Quote, bps int64) error {
	minOut, err := swap.MinAmountOut(q.AmountOut.Raw, bps)
	if err != nil {
		return err
	}
	floor := models.NewTokenAmount(minOut, q.TokenOut.Decimals, q.TokenOut.Symbol)

	a.rule("SWAP QUOTE", green)
	fmt.Fprintf(a.Out, "\n  Venue:             %s\n", q.Venue)
	fmt.Fprintf(a.Out, "  From:              %s\n", yellow(q.AmountIn.String()))
	fmt.Fprintf(a.Out, "  To:                ~%s\n", yellow(q.AmountOut.String()))
	fmt.Fprintf(a.Out, "  Minimum received:  %s (%.2f%% slippage)\n", floor.String(), float64(bps)/100)
	if len(q.Path) > 2 {
		hops := make([]string, len(q.Path))
		for i, p := range q.Path {
			hops[i] = p.Hex()
		}
		fmt.Fprintf(a.Out, "  Path:              %s\n", strings.Join(hops, " -> "))
	}
	fmt.Fprintln(a.Out, "\n"+strings.Repeat("=", 60))
	return nil
}

func (a *App) printResult(res *swap.Result) {
	if res.DryRun {
		a.rule("DRY RUN", yellow)
		if res.SimulatedOut != nil {
			fmt.Fprintf(a.Out, "\n  Simulated output:  %s\n", res.SimulatedOut.String())
		}
		if res.AllowanceShort {
			fmt.Fprintf(a.Out, "  %s\n", yellow("Allowance is short; a live swap would approve the router first"))
		}
		fmt.Fprintln(a.Out, "  Nothing was broadcast.")
		return
	}

	fmt.Fprintf(a.Out, "\n%s Swap %s\n", green("✓"), res.State)
	if res.ApprovalTx != nil {
		fmt.Fprintf(a.Out, "  Approval tx:  %s\n", cyan(res.ApprovalTx.Hex()))
	}
	if res.TxHash != nil {
		fmt.Fprintf(a.Out, "  Swap tx:      %s\n", cyan(res.TxHash.Hex()))
	}
	if res.AmountOutMin != nil {
		fmt.Fprintf(a.Out, "  Min output:   %s\n", res.AmountOutMin.String())
	}
	if res.ExplorerURL != "" {
		fmt.Fprintf(a.Out, "  Explorer:     %s\n", res.ExplorerURL)
	}
}

func (a *App) printHistory(attempts []models.SwapAttempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(a.Out, "No swap attempts recorded.")
		return
	}
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tVENUE\tKIND\tAMOUNT IN\tMIN OUT\tSTATE\tTX")
	for _, at := range attempts {
		state := at.State
		switch state {
		case models.StateConfirmed:
			state = green(state)
		case models.StateFailed:
			state = red(state)
		}
		if at.DryRun {
			state += " (dry)"
		}
		tx := "-"
		if at.TxHash != nil {
			tx = *at.TxHash
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\t%v\t%s\t%s\n",
			at.ID, at.CreatedAt.Local().Format("2006-01-02 15:04"), at.Venue, at.Kind,
			at.AmountIn, at.AmountOutMin, state, tx)
	}
	tw.Flush()
}

func (a *App) printLinks(ls []links.Link) {
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	for _, l := range ls {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", bold(l.Name), l.Category, cyan(l.URL))
	}
	tw.Flush()
}
