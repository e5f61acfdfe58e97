package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-swap/internal/models"
)

const (
	swapTable = "swap_attempts"

	colID                = "id"
	colCreatedAt         = "created_at"
	colUpdatedAt         = "updated_at"
	colWallet            = "wallet"
	colChainID           = "chain_id"
	colVenue             = "venue"
	colKind              = "kind"
	colPath              = "path"
	colAmountIn          = "amount_in"
	colAmountOutEstimate = "amount_out_estimate"
	colAmountOutMin      = "amount_out_min"
	colDeadline          = "deadline"
	colState             = "state"
	colApprovalTxHash    = "approval_tx_hash"
	colTxHash            = "tx_hash"
	colError             = "error"
	colDryRun            = "dry_run"
)

var ErrNotFound = errors.New("swap attempt not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// selectColumns renders NUMERIC columns as text so they scan into strings.
var selectColumns = []string{
	colID, colCreatedAt, colUpdatedAt, colWallet, colChainID, colVenue, colKind, colPath,
	colAmountIn + "::text", colAmountOutEstimate + "::text", colAmountOutMin + "::text",
	colDeadline, colState, colApprovalTxHash, colTxHash, colError, colDryRun,
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Wallet string
	State  string
	DryRun *bool
	Limit  uint64
}

type SwapRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewSwapRepo(pool *pgxpool.Pool) *SwapRepo {
	return &SwapRepo{pool: pool, now: time.Now}
}

// Create inserts a and returns the new id.
func (r *SwapRepo) Create(ctx context.Context, a *models.SwapAttempt) (int64, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	query, args, err := psql.
		Insert(swapTable).
		Columns(
			colCreatedAt, colUpdatedAt, colWallet, colChainID, colVenue, colKind, colPath,
			colAmountIn, colAmountOutEstimate, colAmountOutMin, colDeadline, colState,
			colApprovalTxHash, colTxHash, colError, colDryRun,
		).
		Values(
			created, updated, a.Wallet, a.ChainID, a.Venue, a.Kind, a.Path,
			numeric(a.AmountIn), numeric(a.AmountOutEstimate), numeric(a.AmountOutMin),
			a.Deadline, a.State, a.ApprovalTxHash, a.TxHash, a.Error, a.DryRun,
		).
		Suffix("RETURNING " + colID).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert swap attempt: %w", err)
	}
	return id, nil
}

// Update writes the mutable columns of a.
func (r *SwapRepo) Update(ctx context.Context, a *models.SwapAttempt) error {
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = r.now()
	}

	query, args, err := psql.
		Update(swapTable).
		Set(colUpdatedAt, updated).
		Set(colDeadline, a.Deadline).
		Set(colState, a.State).
		Set(colApprovalTxHash, a.ApprovalTxHash).
		Set(colTxHash, a.TxHash).
		Set(colError, a.Error).
		Where(sq.Eq{colID: a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update swap attempt %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, a.ID)
	}
	return nil
}

func (r *SwapRepo) Get(ctx context.Context, id int64) (*models.SwapAttempt, error) {
	query, args, err := psql.Select(selectColumns...).From(swapTable).Where(sq.Eq{colID: id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	a, err := scanAttempt(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return a, err
}

// List returns the most recent attempts first.
func (r *SwapRepo) List(ctx context.Context, f Filter) ([]models.SwapAttempt, error) {
	limit := f.Limit
	if limit == 0 || limit > 500 {
		limit = 50
	}

	q := filtered(psql.Select(selectColumns...).From(swapTable), f).
		OrderBy(colCreatedAt+" DESC", colID+" DESC").
		Limit(limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// CountToday counts non-dry-run attempts created since UTC midnight.
func (r *SwapRepo) CountToday(ctx context.Context) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From(swapTable).
		Where(sq.GtOrEq{colCreatedAt: DayStart(r.now())}).
		Where(sq.Eq{colDryRun: false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var count int
	err = r.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// Stats returns aggregate attempt statistics.
func (r *SwapRepo) Stats(ctx context.Context, f Filter) (*models.SwapStats, error) {
	q := filtered(psql.Select(
		"COUNT(*)",
		"COUNT(CASE WHEN state = 'confirmed' THEN 1 END)",
		"COUNT(CASE WHEN state = 'failed' THEN 1 END)",
		"COUNT(CASE WHEN dry_run THEN 1 END)",
		"MIN(created_at)",
		"MAX(created_at)",
	).From(swapTable), f)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats: %w", err)
	}

	var s models.SwapStats
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&s.Total, &s.Confirmed, &s.Failed, &s.DryRuns, &s.First, &s.Last,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func filtered(q sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.Wallet != "" {
		q = q.Where(sq.Eq{colWallet: f.Wallet})
	}
	if f.State != "" {
		q = q.Where(sq.Eq{colState: f.State})
	}
	if f.DryRun != nil {
		q = q.Where(sq.Eq{colDryRun: *f.DryRun})
	}
	return q
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAttempt(row scannable) (*models.SwapAttempt, error) {
	var a models.SwapAttempt
	var in, est, minOut string
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Wallet, &a.ChainID, &a.Venue, &a.Kind, &a.Path,
		&in, &est, &minOut,
		&a.Deadline, &a.State, &a.ApprovalTxHash, &a.TxHash, &a.Error, &a.DryRun,
	)
	if err != nil {
		return nil, err
	}
	if a.AmountIn, err = parseNumeric(in); err != nil {
		return nil, err
	}
	if a.AmountOutEstimate, err = parseNumeric(est); err != nil {
		return nil, err
	}
	if a.AmountOutMin, err = parseNumeric(minOut); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAttempts(rows rowsIter) ([]models.SwapAttempt, error) {
	out := []models.SwapAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", s)
	}
	return v, nil
}
