package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// Quoter prices a path.
type Quoter interface {
	// Quote returns the amount at every hop; the last is the output estimate.
	Quote(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// Executor moves tokens through a venue.
type Executor interface {
	Allowance(ctx context.Context, owner, token common.Address) (*big.Int, error)
	// EnsureAllowance approves the venue when the allowance is short. It
	// returns the approve tx hash, or nil if nothing was sent.
	EnsureAllowance(ctx context.Context, owner, token common.Address, amountIn *big.Int) (*common.Hash, error)
	// ExecuteSwap submits req and waits for one confirmation. The hash is
	// returned whenever a transaction was broadcast, including on failure.
	ExecuteSwap(ctx context.Context, req Request) (common.Hash, error)
	// Simulate runs req through eth_call.
	Simulate(ctx context.Context, req Request) ([]*big.Int, error)
}

type Venue interface {
	Name() string
	Spender() common.Address
	Quoter
	Executor
}

type ApprovalPolicy string

const (
	ApproveExact     ApprovalPolicy = "exact"
	ApproveUnlimited ApprovalPolicy = "unlimited"
)

type RouterVenueConfig struct {
	Name           string
	Router         common.Address
	Policy         ApprovalPolicy
	ConfirmTimeout time.Duration
}

// RouterVenue adapts a Uniswap V2 Router02 deployment.
type RouterVenue struct {
	name    string
	client  *ethereum.Client
	router  *ethereum.RouterV2
	erc20   *ethereum.ERC20
	signer  ethereum.Signer
	policy  ApprovalPolicy
	timeout time.Duration
}

func NewRouterVenue(client *ethereum.Client, erc20 *ethereum.ERC20, signer ethereum.Signer, cfg RouterVenueConfig) (*RouterVenue, error) {
	router, err := ethereum.NewRouterV2(client, cfg.Router)
	if err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = ApproveExact
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	return &RouterVenue{
		name:    cfg.Name,
		client:  client,
		router:  router,
		erc20:   erc20,
		signer:  signer,
		policy:  cfg.Policy,
		timeout: cfg.ConfirmTimeout,
	}, nil
}

func (v *RouterVenue) Name() string { return v.name }
func (v *RouterVenue) Spender() common.Address { return v.router.Address() }

func (v *RouterVenue) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if err := validatePath(amountIn, path); err != nil {
		return nil, err
	}
	amounts, err := v.router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		if errors.Is(err, ethereum.ErrExecutionReverted) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInsufficientLiquidity, v.name, err)
		}
		return nil, err
	}
	if len(amounts) != len(path) || amounts[len(amounts)-1].Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s returned no output", ErrInsufficientLiquidity, v.name)
	}
	return amounts, nil
}

func (v *RouterVenue) Allowance(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	return v.erc20.Allowance(ctx, token, owner, v.router.Address())
}

func (v *RouterVenue) EnsureAllowance(ctx context.Context, owner, token common.Address, amountIn *big.Int) (*common.Hash, error) {
	current, err := v.Allowance(ctx, owner, token)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amountIn) >= 0 {
		return nil, nil
	}

	amount := new(big.Int).Set(amountIn)
	if v.policy == ApproveUnlimited {
		amount = ethereum.MaxUint256
	}
	fmt.Printf("[SWAP] Approving %s to spend %s of %s (%s)\n", v.name, amount.String(), token.Hex(), v.policy)

	hash, err := v.erc20.Approve(ctx, v.signer, owner, token, v.router.Address(), amount)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return nil, fmt.Errorf("%w: %w", ErrApprovalRejected, err)
		}
		return nil, err
	}

	if _, err := v.wait(ctx, hash); err != nil {
		return &hash, err
	}
	fmt.Printf("[SWAP] Approval confirmed: %s\n", hash.Hex())
	return &hash, nil
}

func (v *RouterVenue) ExecuteSwap(ctx context.Context, req Request) (common.Hash, error) {
	if err := validatePath(req.AmountIn, req.Path); err != nil {
		return common.Hash{}, err
	}
	hash, err := v.router.Swap(ctx, v.signer, req.From, req.call())
	if err != nil {
		return common.Hash{}, err
	}
	fmt.Printf("[SWAP] Submitted %s on %s: %s\n", req.Kind, v.name, hash.Hex())

	receipt, err := v.wait(ctx, hash)
	if err != nil {
		return hash, err
	}
	fmt.Printf("[SWAP] Confirmed in block %s (gas %d)\n", receipt.BlockNumber, receipt.GasUsed)
	return hash, nil
}

func (v *RouterVenue) Simulate(ctx context.Context, req Request) ([]*big.Int, error) {
	if err := validatePath(req.AmountIn, req.Path); err != nil {
		return nil, err
	}
	amounts, err := v.router.SimulateSwap(ctx, req.From, req.call())
	if err != nil {
		if errors.Is(err, ethereum.ErrExecutionReverted) {
			return nil, fmt.Errorf("%w: simulated: %w", ethereum.ErrTransactionReverted, err)
		}
		return nil, err
	}
	return amounts, nil
}

// wait bounds the confirmation wait. Expiry leaves the transaction in the
// mempool; it cannot be withdrawn.
func (v *RouterVenue) wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.client.WaitMined(waitCtx, hash)
}

// Registry holds venues by name.
type Registry struct {
	venues map[string]Venue
	def    string
}

func NewRegistry(defaultVenue string) *Registry {
	return &Registry{venues: make(map[string]Venue), def: defaultVenue}
}

func (r *Registry) Register(v Venue) { r.venues[v.Name()] = v }

// Get returns the named venue, or the default for "".
func (r *Registry) Get(name string) (Venue, error) {
	if name == "" {
		name = r.def
	}
	v, ok := r.venues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownVenue, name, r.Names())
	}
	return v, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.venues))
	for n := range r.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Default() string { return r.def }
