/*
Package sqlite provides a SQLite-backed implementation of insurance.Store.

PURPOSE:
  Durable persistence for the policy ledger. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  policies:            One row per policy (mutable bookkeeping columns)
  policy_tags:         Creation-time tags, position-ordered
  policy_participants: Join-ordered, unique per policy
  claims:              One row per claim, keyed by (policy_id, claim_index)
  premium_payments:    Append-only inflow history

APPEND-ONLY ENFORCEMENT:
  premium_payments and claims rows are never deleted. Claims are only
  ever flipped approved/paid; policy totals are whole-row updates made
  inside a single SQL transaction by SavePolicy.

AMOUNTS:
  Token quantities are decimal.Decimal stored as TEXT to avoid
  floating-point drift.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/pool.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := insurance.NewLedger(store, registry)

SEE ALSO:
  - insurance/store.go: Interface definition
  - insurance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/pool-engine/insurance"
)

// Store implements insurance.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Policies (bookkeeping columns are mutable, metadata is not)
	CREATE TABLE IF NOT EXISTS policies (
		id INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		token TEXT NOT NULL,
		payout_unit INTEGER NOT NULL,
		total_premium TEXT NOT NULL,
		remaining_payout TEXT NOT NULL,
		payout_processed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Tags (fixed at creation, position-ordered)
	CREATE TABLE IF NOT EXISTS policy_tags (
		policy_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (policy_id, position),
		FOREIGN KEY (policy_id) REFERENCES policies(id)
	);

	-- Participants (unique per policy, join-ordered via position)
	CREATE TABLE IF NOT EXISTS policy_participants (
		policy_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		identity TEXT NOT NULL,
		PRIMARY KEY (policy_id, position),
		UNIQUE (policy_id, identity),
		FOREIGN KEY (policy_id) REFERENCES policies(id)
	);

	-- Claims (append-only rows; approved/paid flags flip at most once)
	CREATE TABLE IF NOT EXISTS claims (
		policy_id INTEGER NOT NULL,
		claim_index INTEGER NOT NULL,
		claimant TEXT NOT NULL,
		amount TEXT NOT NULL,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		submitted_at TEXT NOT NULL,
		PRIMARY KEY (policy_id, claim_index),
		FOREIGN KEY (policy_id) REFERENCES policies(id)
	);

	-- Premium payments (append-only inflow history)
	CREATE TABLE IF NOT EXISTS premium_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_id INTEGER NOT NULL,
		payer TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		FOREIGN KEY (policy_id) REFERENCES policies(id)
	);

	CREATE INDEX IF NOT EXISTS idx_premium_payments_policy
		ON premium_payments(policy_id);
	CREATE INDEX IF NOT EXISTS idx_claims_policy_unpaid
		ON claims(policy_id) WHERE approved AND NOT paid;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POLICIES
// =============================================================================

// CreatePolicy assigns the next dense id and inserts the policy with
// its tags and initial participants, all in one transaction. The
// ledger serializes writers, so COUNT(*) is a safe id source here.
func (s *Store) CreatePolicy(ctx context.Context, p *insurance.Policy) (insurance.PolicyID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM policies`).Scan(&count); err != nil {
		return 0, err
	}
	id := insurance.PolicyID(count)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO policies (id, owner, name, duration_seconds, token, payout_unit,
			total_premium, remaining_payout, payout_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(p.Owner), p.Name, p.DurationSeconds, p.Token, p.PayoutUnit,
		p.TotalPremium.String(), p.RemainingPayout.String(), p.PayoutProcessed,
		p.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}

	for i, tag := range p.Tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO policy_tags (policy_id, position, tag) VALUES (?, ?, ?)`,
			id, i, tag); err != nil {
			return 0, err
		}
	}
	for i, member := range p.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO policy_participants (policy_id, position, identity) VALUES (?, ?, ?)`,
			id, i, string(member)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// GetPolicy loads the full policy record: row, tags, participants, claims.
func (s *Store) GetPolicy(ctx context.Context, id insurance.PolicyID) (*insurance.Policy, error) {
	p, err := s.scanPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) scanPolicy(ctx context.Context, id insurance.PolicyID) (*insurance.Policy, error) {
	var (
		p                       insurance.Policy
		owner, token            string
		totalPremium, remaining string
		createdAt               string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, duration_seconds, token, payout_unit,
			total_premium, remaining_payout, payout_processed, created_at
		FROM policies WHERE id = ?`, id).Scan(
		&p.ID, &owner, &p.Name, &p.DurationSeconds, &token, &p.PayoutUnit,
		&totalPremium, &remaining, &p.PayoutProcessed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", insurance.ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	p.Owner = insurance.Identity(owner)
	p.Token = token
	if p.TotalPremium, err = decimal.NewFromString(totalPremium); err != nil {
		return nil, fmt.Errorf("corrupt total_premium for policy %d: %w", id, err)
	}
	if p.RemainingPayout, err = decimal.NewFromString(remaining); err != nil {
		return nil, fmt.Errorf("corrupt remaining_payout for policy %d: %w", id, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for policy %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) loadChildren(ctx context.Context, p *insurance.Policy) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag FROM policy_tags WHERE policy_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err
		}
		p.Tags = append(p.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT identity FROM policy_participants WHERE policy_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return err
		}
		p.Participants = append(p.Participants, insurance.Identity(identity))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT claimant, amount, approved, paid, submitted_at
		FROM claims WHERE policy_id = ? ORDER BY claim_index`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			claim       insurance.Claim
			claimant    string
			amount      string
			submittedAt string
		)
		if err := rows.Scan(&claimant, &amount, &claim.Approved, &claim.Paid, &submittedAt); err != nil {
			return err
		}
		claim.Claimant = insurance.Identity(claimant)
		if claim.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("corrupt claim amount for policy %d: %w", p.ID, err)
		}
		if claim.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
			return fmt.Errorf("corrupt claim submitted_at for policy %d: %w", p.ID, err)
		}
		p.Claims = append(p.Claims, claim)
	}
	return rows.Err()
}

// SavePolicy writes all mutable state in one transaction: bookkeeping
// columns, new participants, and claim rows (insert or flag updates).
func (s *Store) SavePolicy(ctx context.Context, p *insurance.Policy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE policies
		SET total_premium = ?, remaining_payout = ?, payout_processed = ?
		WHERE id = ?`,
		p.TotalPremium.String(), p.RemainingPayout.String(), p.PayoutProcessed, p.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", insurance.ErrPolicyNotFound, p.ID)
	}

	for i, member := range p.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO policy_participants (policy_id, position, identity)
			VALUES (?, ?, ?)`,
			p.ID, i, string(member)); err != nil {
			return err
		}
	}

	for i, claim := range p.Claims {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO claims (policy_id, claim_index, claimant, amount, approved, paid, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (policy_id, claim_index)
			DO UPDATE SET approved = excluded.approved, paid = excluded.paid`,
			p.ID, i, string(claim.Claimant), claim.Amount.String(),
			claim.Approved, claim.Paid,
			claim.SubmittedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListPolicies returns all policies in id order.
func (s *Store) ListPolicies(ctx context.Context) ([]*insurance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM policies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []insurance.PolicyID
	for rows.Next() {
		var id insurance.PolicyID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	policies := make([]*insurance.Policy, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// =============================================================================
// PREMIUM PAYMENTS
// =============================================================================

// RecordPremium appends an inflow record. Append-only.
func (s *Store) RecordPremium(ctx context.Context, payment insurance.PremiumPayment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO premium_payments (policy_id, payer, amount, paid_at)
		VALUES (?, ?, ?, ?)`,
		payment.PolicyID, string(payment.Payer), payment.Amount.String(),
		payment.PaidAt.Format(time.RFC3339Nano))
	return err
}

// Premiums returns a policy's payment history in payment order.
func (s *Store) Premiums(ctx context.Context, id insurance.PolicyID) ([]insurance.PremiumPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payer, amount, paid_at FROM premium_payments
		WHERE policy_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []insurance.PremiumPayment
	for rows.Next() {
		var (
			payment insurance.PremiumPayment
			payer   string
			amount  string
			paidAt  string
		)
		if err := rows.Scan(&payer, &amount, &paidAt); err != nil {
			return nil, err
		}
		payment.PolicyID = id
		payment.Payer = insurance.Identity(payer)
		if payment.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt premium amount for policy %d: %w", id, err)
		}
		if payment.PaidAt, err = time.Parse(time.RFC3339Nano, paidAt); err != nil {
			return nil, fmt.Errorf("corrupt paid_at for policy %d: %w", id, err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}
