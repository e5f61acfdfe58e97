package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-swap/internal/links"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/repository"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// ErrCancelled is returned when the user declines the final confirmation.
var ErrCancelled = errors.New("swap cancelled")

type swapFlags struct {
	slippage float64
	venue    string
	via      []string
	yes      bool
}

func (f *swapFlags) register(cmd *cobra.Command, withYes bool) {
	cmd.Flags().Float64Var(&f.slippage, "slippage", 0, "Slippage tolerance in percent (default SLIPPAGE_TOLERANCE)")
	cmd.Flags().StringVar(&f.venue, "venue", "", "Router venue (default DEFAULT_VENUE)")
	cmd.Flags().StringSliceVar(&f.via, "via", nil, "Intermediate tokens for a multi-hop path")
	if withYes {
		cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Skip confirmation prompts")
	}
}

func (f *swapFlags) params(args []string) swap.Params {
	p := swap.Params{
		Venue:    f.venue,
		Amount:   args[0],
		TokenIn:  args[1],
		TokenOut: args[2],
		Via:      f.via,
	}
	if f.slippage > 0 {
		p.SlippageBps = int64(f.slippage*100 + 0.5)
	}
	return p
}

func (a *App) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the configured wallet and show the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open(cmd.Context(), false, false, false)
			if err != nil {
				return err
			}
			defer s.closer()

			sess, err := s.svc.Connect(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(sess)
			}
			a.printSession(sess)
			return nil
		},
	}
}

func (a *App) balanceCmd() *cobra.Command {
	var token, address string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the native or token balance of the wallet or an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, false, false, false)
			if err != nil {
				return err
			}
			defer s.closer()

			var owner common.Address
			chainID := int64(s.cfg.ChainID)
			if address != "" {
				if !common.IsHexAddress(address) {
					return fmt.Errorf("%w: address %q", swap.ErrInvalidRequest, address)
				}
				owner = common.HexToAddress(address)
			} else {
				sess, err := s.svc.Connect(ctx)
				if err != nil {
					return err
				}
				owner, chainID = sess.Address, sess.ChainID
			}

			if token == "" {
				token = "ETH"
			}
			tok, err := s.svc.Tokens.Resolve(ctx, chainID, token)
			if err != nil {
				return err
			}
			var bal models.TokenAmount
			if tok.Native {
				bal, err = s.svc.Balances.ReadNative(ctx, owner)
			} else {
				bal, err = s.svc.Balances.ReadToken(ctx, tok.Address, owner)
			}
			if err != nil {
				return err
			}
			usd := s.svc.ValueUSD(ctx, tok, bal)

			if a.jsonOutput {
				return a.printJSON(map[string]any{"owner": owner.Hex(), "token": tok, "balance": bal, "usd": usd})
			}
			fmt.Fprintf(a.Out, "%s  %s", cyan(owner.Hex()), bold(bal.String()))
			if usd != nil {
				fmt.Fprintf(a.Out, "  (~$%.2f)", *usd)
			}
			fmt.Fprintln(a.Out)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token symbol or address (default native ETH)")
	cmd.Flags().StringVar(&address, "address", "", "Read another address instead of connecting")
	return cmd
}

func (a *App) quoteCmd() *cobra.Command {
	var f swapFlags
	cmd := &cobra.Command{
		Use:   "quote <amount> <token-in> <token-out>",
		Short: "Quote a swap without sending anything",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, false, false, false)
			if err != nil {
				return err
			}
			defer s.closer()

			if _, err := s.svc.Connect(ctx); err != nil {
				return err
			}
			p := f.params(args)
			q, err := spin(a, " Fetching quote...", func() (*swap.Quote, error) {
				return s.svc.Quote(ctx, p)
			})
			if err != nil {
				return err
			}
			bps := p.SlippageBps
			if bps == 0 {
				bps = s.cfg.SlippageBps()
			}
			if a.jsonOutput {
				return a.printJSON(q)
			}
			return a.printQuote(q, bps)
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *App) swapCmd() *cobra.Command {
	var f swapFlags
	cmd := &cobra.Command{
		Use:   "swap <amount> <token-in> <token-out>",
		Short: "Quote, approve if needed, and execute a swap",
		Long: `Quote the swap, show the minimum output for the slippage tolerance, and on
confirmation approve the router (if the allowance is short) and submit the swap.
With DRY_RUN=true the swap is simulated with eth_call and nothing is broadcast.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, f.yes, true, false)
			if err != nil {
				return err
			}
			defer s.closer()

			if _, err := s.svc.Connect(ctx); err != nil {
				return err
			}
			p := f.params(args)
			q, err := spin(a, " Fetching quote...", func() (*swap.Quote, error) {
				return s.svc.Quote(ctx, p)
			})
			if err != nil {
				return err
			}
			bps := p.SlippageBps
			if bps == 0 {
				bps = s.cfg.SlippageBps()
			}
			if !a.jsonOutput {
				if err := a.printQuote(q, bps); err != nil {
					return err
				}
			}

			if !f.yes {
				ok, err := a.approver.Approve(ctx, "Proceed with swap?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.Out, "\nSwap cancelled.")
					return ErrCancelled
				}
			}

			execute := func() (*swap.Result, error) { return s.svc.Execute(ctx, p) }
			var res *swap.Result
			if a.prompting() {
				// sign prompts share a.Out with the spinner
				fmt.Fprintln(a.Out, "\nSubmitting swap...")
				res, err = execute()
			} else {
				res, err = spin(a, " Submitting swap...", execute)
			}
			if a.jsonOutput && res != nil {
				if perr := a.printJSON(res); perr != nil {
					return perr
				}
				return err
			}
			if err != nil {
				return err
			}
			a.printResult(res)
			return nil
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *App) historyCmd() *cobra.Command {
	var limit uint64
	var state, mode string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded swap attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, false, true, true)
			if err != nil {
				return err
			}
			defer s.closer()

			f := repository.Filter{State: state, Limit: limit}
			switch mode {
			case "", "all":
			case "dry", "live":
				dry := mode == "dry"
				f.DryRun = &dry
			default:
				return fmt.Errorf("%w: mode %q, expected dry|live|all", swap.ErrInvalidRequest, mode)
			}

			attempts, err := s.svc.History(ctx, f)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(attempts)
			}
			a.printHistory(attempts)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&limit, "limit", 20, "Maximum attempts to list")
	cmd.Flags().StringVar(&state, "state", "", "Only attempts in this state")
	cmd.Flags().StringVar(&mode, "mode", "all", "dry|live|all")
	return cmd
}

func (a *App) linksCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List explorers, DEX front-ends and tools for the configured chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			chainID := int64(cfg.ChainID)

			ls := links.Static(chainID)
			if address != "" {
				if !common.IsHexAddress(address) {
					return fmt.Errorf("%w: address %q", swap.ErrInvalidRequest, address)
				}
				ls = links.ForAddress(chainID, common.HexToAddress(address))
			}
			if a.jsonOutput {
				return a.printJSON(ls)
			}
			a.printLinks(ls)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Add explorer pages for this address")
	return cmd
}

// prompting reports whether sign requests will be asked on the terminal.
func (a *App) prompting() bool {
	_, static := a.approver.(wallet.StaticApprover)
	return a.approver != nil && !static
}

// spin runs fn behind a terminal spinner unless JSON output is on.
func spin[T any](a *App, suffix string, fn func() (T, error)) (T, error) {
	if a.jsonOutput {
		return fn()
	}
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.Out))
	sp.Suffix = suffix
	sp.Start()
	v, err := fn()
	sp.Stop()
	return v, err
}
