package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/tokens"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// Guard vets an attempt before anything is quoted. *risk.Guardian implements it.
type Guard interface {
	PreSwapCheck(ctx context.Context, chainID int64, slippageBps int64) error
}

// Recorder persists attempts. *repository.SwapRepo implements it.
type Recorder interface {
	Create(ctx context.Context, a *models.SwapAttempt) (int64, error)
	Update(ctx context.Context, a *models.SwapAttempt) error
}

// Notifier is told about every terminal attempt.
type Notifier interface {
	SwapFinished(ctx context.Context, ev models.SwapEvent)
}

// Params is a user's swap intent in human units.
type Params struct {
	Venue       string   `json:"venue"`
	Amount      string   `json:"amount"`
	TokenIn     string   `json:"tokenIn"`
	TokenOut    string   `json:"tokenOut"`
	Via         []string `json:"via,omitempty"`
	SlippageBps int64    `json:"slippageBps,omitempty"`
}

// Quote is recomputed on every request.
type Quote struct {
	Venue     string             `json:"venue"`
	Kind      ethereum.SwapKind  `json:"kind"`
	TokenIn   tokens.Token       `json:"tokenIn"`
	TokenOut  tokens.Token       `json:"tokenOut"`
	AmountIn  models.TokenAmount `json:"amountIn"`
	AmountOut models.TokenAmount `json:"amountOut"`
	Amounts   []*big.Int         `json:"amounts"`
	Path      []common.Address   `json:"path"`
	QuotedAt  time.Time          `json:"quotedAt"`
}

type Result struct {
	AttemptID      int64               `json:"attemptId,omitempty"`
	State          StateType           `json:"state"`
	Quote          *Quote              `json:"quote,omitempty"`
	AmountOutMin   *models.TokenAmount `json:"amountOutMin,omitempty"`
	Deadline       time.Time           `json:"deadline"`
	ApprovalTx     *common.Hash        `json:"approvalTx,omitempty"`
	TxHash         *common.Hash        `json:"txHash,omitempty"`
	ExplorerURL    string              `json:"explorerUrl,omitempty"`
	DryRun         bool                `json:"dryRun"`
	SimulatedOut   *models.TokenAmount `json:"simulatedOut,omitempty"`
	AllowanceShort bool                `json:"allowanceShort,omitempty"`
	Error          string              `json:"error,omitempty"`
}

type FlowConfig struct {
	ChainID     int64
	SlippageBps int64
	Deadline    time.Duration
	DryRun      bool
	Now         func() time.Time

	Guard     Guard
	Recorder  Recorder
	Notifier  Notifier
	Observers []Observer
}

// Flow runs quote and execute against the current wallet session. Only one
// execution may be in flight.
type Flow struct {
	sessions wallet.SessionSource
	tokens   *tokens.Registry
	venues   *Registry
	cfg      FlowConfig

	inFlight atomic.Bool
}

func NewFlow(sessions wallet.SessionSource, registry *tokens.Registry, venues *Registry, cfg FlowConfig) *Flow {
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = 50
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Flow{sessions: sessions, tokens: registry, venues: venues, cfg: cfg}
}

func (f *Flow) Venues() *Registry { return f.venues }

func (f *Flow) DryRun() bool { return f.cfg.DryRun }

func (f *Flow) InProgress() bool { return f.inFlight.Load() }

// session returns the current session after the mandatory network check.
func (f *Flow) session() (wallet.Session, error) {
	s, err := f.sessions.CurrentSession()
	if err != nil {
		return wallet.Session{}, err
	}
	if s.ChainID != f.cfg.ChainID {
		return wallet.Session{}, fmt.Errorf("%w: wallet is on chain %d, expected %d", ErrWrongNetwork, s.ChainID, f.cfg.ChainID)
	}
	return s, nil
}

// Quote prices p for the connected wallet.
func (f *Flow) Quote(ctx context.Context, p Params) (*Quote, error) {
	s, err := f.session()
	if err != nil {
		return nil, err
	}
	q, _, err := f.quote(ctx, s, p)
	return q, err
}

func (f *Flow) quote(ctx context.Context, s wallet.Session, p Params) (*Quote, Venue, error) {
	venue, err := f.venues.Get(p.Venue)
	if err != nil {
		return nil, nil, err
	}

	in, err := f.resolve(ctx, s.ChainID, p.TokenIn)
	if err != nil {
		return nil, nil, err
	}
	out, err := f.resolve(ctx, s.ChainID, p.TokenOut)
	if err != nil {
		return nil, nil, err
	}
	if in.Address == out.Address {
		return nil, nil, fmt.Errorf("%w: %s and %s are the same asset", ErrInvalidRequest, in.Symbol, out.Symbol)
	}
	kind, err := KindFor(in.Native, out.Native)
	if err != nil {
		return nil, nil, err
	}

	path := []common.Address{in.Address}
	for _, ref := range p.Via {
		hop, err := f.resolve(ctx, s.ChainID, ref)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, hop.Address)
	}
	path = append(path, out.Address)

	amountIn, err := models.ParseTokenAmount(p.Amount, in.Decimals, in.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !amountIn.IsPositive() {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	amounts, err := venue.Quote(ctx, amountIn.Raw, path)
	if err != nil {
		return nil, nil, err
	}

	q := &Quote{
		Venue:     venue.Name(),
		Kind:      kind,
		TokenIn:   in,
		TokenOut:  out,
		AmountIn:  amountIn,
		AmountOut: models.NewTokenAmount(amounts[len(amounts)-1], out.Decimals, out.Symbol),
		Amounts:   amounts,
		Path:      path,
		QuotedAt:  f.cfg.Now(),
	}
	return q, venue, nil
}

func (f *Flow) resolve(ctx context.Context, chainID int64, ref string) (tokens.Token, error) {
	t, err := f.tokens.Resolve(ctx, chainID, ref)
	if err != nil {
		if errors.Is(err, tokens.ErrUnknownToken) {
			return tokens.Token{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return tokens.Token{}, err
	}
	return t, nil
}

// Execute runs one attempt: quote, approve if needed, swap and wait for a
// confirmation (or simulate in dry-run mode). On failure the returned Result
// still describes how far the attempt got.
func (f *Flow) Execute(ctx context.Context, p Params) (*Result, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSwapInProgress
	}
	defer f.inFlight.Store(false)

	bps := p.SlippageBps
	if bps == 0 {
		bps = f.cfg.SlippageBps
	}
	if err := ValidateSlippage(bps); err != nil {
		return nil, err
	}
	s, err := f.session()
	if err != nil {
		return nil, err
	}
	if f.cfg.Guard != nil {
		if err := f.cfg.Guard.PreSwapCheck(ctx, s.ChainID, bps); err != nil {
			return nil, err
		}
	}

	run := &attemptRun{flow: f, machine: newAttemptMachine(f.cfg.Observers...), res: &Result{DryRun: f.cfg.DryRun}}
	run.send(ctx, OnStart)

	q, venue, err := f.quote(ctx, s, p)
	if err != nil {
		return run.fail(ctx, err)
	}
	run.res.Quote = q

	minOut, err := MinAmountOut(q.AmountOut.Raw, bps)
	if err != nil {
		return run.fail(ctx, err)
	}
	req := Request{
		Kind:         q.Kind,
		AmountIn:     q.AmountIn.Raw,
		AmountOutMin: minOut,
		Path:         q.Path,
		From:         s.Address,
		Recipient:    s.Address,
		Deadline:     DeadlineAt(f.cfg.Now(), f.cfg.Deadline),
	}
	minAmt := models.NewTokenAmount(minOut, q.TokenOut.Decimals, q.TokenOut.Symbol)
	run.res.AmountOutMin = &minAmt
	run.res.Deadline = req.Deadline
	run.begin(ctx, s, q, req)

	fmt.Printf("[SWAP] %s %s -> %s on %s (min out %s)\n",
		q.Kind, q.AmountIn, q.TokenOut.Symbol, q.Venue, minAmt)

	needsApproval := false
	if q.Kind != ethereum.ETHForTokens {
		allowance, err := venue.Allowance(ctx, s.Address, req.Path[0])
		if err != nil {
			return run.fail(ctx, err)
		}
		needsApproval = allowance.Cmp(req.AmountIn) < 0
	}

	if needsApproval && f.cfg.DryRun {
		// No approve is sent in dry run; the router would revert the
		// simulated transferFrom, so the quote stands in for the output.
		fmt.Printf("[SWAP] DRY RUN: allowance for %s is below %s, approval would be required\n", q.TokenIn.Symbol, q.AmountIn)
		run.res.AllowanceShort = true
		needsApproval = false
	}

	if needsApproval {
		run.send(ctx, OnNeedsApproval)
		hash, err := venue.EnsureAllowance(ctx, s.Address, req.Path[0], req.AmountIn)
		if hash != nil {
			run.res.ApprovalTx = hash
			h := hash.Hex()
			run.attempt.ApprovalTxHash = &h
		}
		if err != nil {
			return run.fail(ctx, err)
		}
	}

	// Deadline counts from submission, after any approval wait.
	req.Deadline = DeadlineAt(f.cfg.Now(), f.cfg.Deadline)
	run.res.Deadline = req.Deadline
	run.attempt.Deadline = req.Deadline
	fmt.Printf("[SWAP] Submitting with deadline %s\n", req.Deadline.UTC().Format(time.RFC3339))
	if needsApproval {
		run.send(ctx, OnApproved)
	} else {
		run.send(ctx, OnReady)
	}

	if f.cfg.DryRun {
		out := q.AmountOut.Raw
		if !run.res.AllowanceShort {
			amounts, err := venue.Simulate(ctx, req)
			if err != nil {
				return run.fail(ctx, err)
			}
			if len(amounts) == 0 {
				return run.fail(ctx, fmt.Errorf("%w: simulation returned no amounts", ethereum.ErrContractCall))
			}
			out = amounts[len(amounts)-1]
		}
		sim := models.NewTokenAmount(out, q.TokenOut.Decimals, q.TokenOut.Symbol)
		run.res.SimulatedOut = &sim
		fmt.Printf("[SWAP] DRY RUN: would receive %s\n", sim)
	} else {
		hash, err := venue.ExecuteSwap(ctx, req)
		if hash != (common.Hash{}) {
			run.res.TxHash = &hash
			run.res.ExplorerURL = ethereum.ExplorerTxURL(s.ChainID, hash)
			h := hash.Hex()
			run.attempt.TxHash = &h
		}
		if err != nil {
			return run.fail(ctx, err)
		}
	}

	run.send(ctx, OnMined)
	run.finish(ctx)
	return run.res, nil
}

// attemptRun carries one execution's machine, result and persisted row.
type attemptRun struct {
	flow    *Flow
	machine *attemptMachine
	res     *Result
	attempt *models.SwapAttempt
}

func (r *attemptRun) send(ctx context.Context, ev EventType) {
	if err := r.machine.Send(ev); err != nil {
		fmt.Printf("[SWAP] %v\n", err)
		return
	}
	r.res.State = r.machine.State()
	if r.attempt != nil {
		r.attempt.State = string(r.res.State)
		r.update(ctx)
	}
}

func (r *attemptRun) begin(ctx context.Context, s wallet.Session, q *Quote, req Request) {
	path := make([]string, len(req.Path))
	for i, a := range req.Path {
		path[i] = a.Hex()
	}
	now := r.flow.cfg.Now()
	r.attempt = &models.SwapAttempt{
		CreatedAt:         now,
		UpdatedAt:         now,
		Wallet:            s.Address.Hex(),
		ChainID:           s.ChainID,
		Venue:             q.Venue,
		Kind:              string(q.Kind),
		Path:              path,
		AmountIn:          req.AmountIn,
		AmountOutEstimate: q.AmountOut.Raw,
		AmountOutMin:      req.AmountOutMin,
		Deadline:          req.Deadline,
		State:             string(r.machine.State()),
		DryRun:            r.flow.cfg.DryRun,
	}
	if rec := r.flow.cfg.Recorder; rec != nil {
		id, err := rec.Create(context.WithoutCancel(ctx), r.attempt)
		if err != nil {
			fmt.Printf("[SWAP] Failed to record attempt: %v\n", err)
			return
		}
		r.attempt.ID = id
		r.res.AttemptID = id
	}
}

func (r *attemptRun) update(ctx context.Context) {
	rec := r.flow.cfg.Recorder
	if rec == nil || r.attempt.ID == 0 {
		return
	}
	r.attempt.UpdatedAt = r.flow.cfg.Now()
	if err := rec.Update(context.WithoutCancel(ctx), r.attempt); err != nil {
		fmt.Printf("[SWAP] Failed to update attempt %d: %v\n", r.attempt.ID, err)
	}
}

func (r *attemptRun) fail(ctx context.Context, err error) (*Result, error) {
	r.res.Error = err.Error()
	if r.attempt != nil {
		msg := err.Error()
		r.attempt.Error = &msg
	}
	r.send(ctx, OnError)
	fmt.Printf("[SWAP] Attempt failed: %v\n", err)
	r.finish(ctx)
	return r.res, err
}

func (r *attemptRun) finish(ctx context.Context) {
	if r.attempt == nil || r.flow.cfg.Notifier == nil {
		return
	}
	a := r.attempt
	ev := models.SwapEvent{
		AttemptID: a.ID,
		Timestamp: r.flow.cfg.Now(),
		Wallet:    a.Wallet,
		ChainID:   a.ChainID,
		Venue:     a.Venue,
		State:     a.State,
		AmountIn:  r.res.Quote.AmountIn.String(),
		AmountOut: r.res.Quote.AmountOut.String(),
		DryRun:    a.DryRun,
	}
	if a.TxHash != nil {
		ev.TxHash = *a.TxHash
	}
	if a.ApprovalTxHash != nil {
		ev.ApprovalTxHash = *a.ApprovalTxHash
	}
	if a.Error != nil {
		ev.Error = *a.Error
	}
	r.flow.cfg.Notifier.SwapFinished(context.WithoutCancel(ctx), ev)
}
