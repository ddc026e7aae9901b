package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the invocation journal.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Invocation represents a journaled program method invocation.
// The transaction signature is the natural key: the same signed bytes
// always produce the same signature, so resubmissions map to one row.
type Invocation struct {
	Signature      string
	Method         string
	ProgramAddress string
	Network        string // "mainnet" or "devnet"
	Payer          string
	Status         string
	Error          *string // terminal failure reason, nil otherwise
	Slot           *int64  // set once the transaction lands
	WorkflowID     *string // Temporal workflow that drove the invocation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateInvocationParams contains the parameters for journaling an invocation.
type CreateInvocationParams struct {
	Signature      string
	Method         string
	ProgramAddress string
	Network        string
	Payer          string
	Status         string
	WorkflowID     *string
}

// ListInvocationsParams contains filter and pagination parameters.
type ListInvocationsParams struct {
	Method  string // empty means all methods
	Network string // empty means all networks
	Status  string // empty means all statuses
	Limit   int32
	Offset  int32
}

const invocationColumns = `signature, method, program_address, network, payer, status, error, slot, workflow_id, created_at, updated_at`

// CreateInvocation inserts a new invocation row.
// Inserting the same signature twice returns the existing row unchanged,
// so idempotent resubmissions never duplicate journal entries.
func (s *Store) CreateInvocation(ctx context.Context, params CreateInvocationParams) (*Invocation, bool, error) {
	query := `
		INSERT INTO invocations (signature, method, program_address, network, payer, status, workflow_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signature) DO NOTHING
		RETURNING ` + invocationColumns

	row := s.pool.QueryRow(ctx, query,
		params.Signature,
		params.Method,
		params.ProgramAddress,
		params.Network,
		params.Payer,
		params.Status,
		params.WorkflowID,
	)

	inv, err := scanInvocation(row)
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create invocation: %w", err)
	}

	// Conflict path: the row already exists.
	existing, err := s.GetInvocation(ctx, params.Signature)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateInvocationStatus records a status transition for an invocation.
// The error reason and slot are optional and only set on terminal states.
func (s *Store) UpdateInvocationStatus(ctx context.Context, signature, status string, errReason *string, slot *int64) (*Invocation, error) {
	query := `
		UPDATE invocations
		SET status = $2, error = $3, slot = COALESCE($4, slot), updated_at = now()
		WHERE signature = $1
		RETURNING ` + invocationColumns

	row := s.pool.QueryRow(ctx, query, signature, status, errReason, slot)
	inv, err := scanInvocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update invocation status: %w", err)
	}
	return inv, nil
}

// GetInvocation retrieves an invocation by its transaction signature.
func (s *Store) GetInvocation(ctx context.Context, signature string) (*Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	inv, err := scanInvocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return inv, nil
}

// ListInvocations retrieves invocations matching the filters, most recent first.
func (s *Store) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]*Invocation, error) {
	query := `
		SELECT ` + invocationColumns + `
		FROM invocations
		WHERE ($1 = '' OR method = $1)
		  AND ($2 = '' OR network = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, params.Method, params.Network, params.Status, limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocations: %w", err)
	}

	return invocations, nil
}

// CountInvocationsByStatus returns the number of invocations per status.
func (s *Store) CountInvocationsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM invocations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count invocations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var inv Invocation
	err := row.Scan(
		&inv.Signature,
		&inv.Method,
		&inv.ProgramAddress,
		&inv.Network,
		&inv.Payer,
		&inv.Status,
		&inv.Error,
		&inv.Slot,
		&inv.WorkflowID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
