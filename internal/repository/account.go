package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"github.com/pairlink/pairlink/internal/model"
	"github.com/pairlink/pairlink/internal/pairing"
)

const (
	// maxTxAttempts bounds the automatic retries of a conflicting transaction.
	maxTxAttempts = 5

	// txRetryBaseDelay is the first backoff step between attempts.
	txRetryBaseDelay = 10 * time.Millisecond
)

// ErrTxConflict is returned when a transaction still conflicts after
// maxTxAttempts retries.
var ErrTxConflict = errors.New("transaction retries exhausted")

// accountTx implements pairing.Tx on top of one pgx transaction. The context
// is the one RunTransaction was called with; it spans all attempts.
type accountTx struct {
	ctx context.Context
	tx  pgx.Tx
}

var _ pairing.Store = (*Repository)(nil)

// RunTransaction executes fn inside a serializable transaction and retries it
// from scratch when PostgreSQL reports a serialization failure or deadlock.
// fn must be free of side effects beyond the mutations it issues through the
// passed Tx, since it may run more than once.
func (r *Repository) RunTransaction(ctx context.Context, fn func(tx pairing.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			delay := txRetryBaseDelay << (attempt - 1)
			jitter := time.Duration(rand.Int63n(int64(delay)))
			timer := time.NewTimer(delay + jitter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(&accountTx{ctx: ctx, tx: tx})
		})
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

const accountColumns = `
	uid, email, name,
	partner_uid, partner_name, partner_email,
	couple_id,
	request_out_uid, request_out_name, request_out_email,
	request_in_uid, request_in_name, request_in_email,
	refresh_token, created_at, updated_at
`

// Account returns the record for uid within the transaction snapshot.
func (t *accountTx) Account(uid string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE uid = $1`
	return scanAccount(t.tx.QueryRow(t.ctx, query, uid))
}

// AccountByEmail resolves an account by email within the transaction snapshot.
func (t *accountTx) AccountByEmail(email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(t.tx.QueryRow(t.ctx, query, email))
}

// SaveAccount writes the full record back, mirrored fields included.
func (t *accountTx) SaveAccount(a *model.Account) error {
	query := `
		UPDATE accounts SET
			email = $2, name = $3,
			partner_uid = $4, partner_name = $5, partner_email = $6,
			couple_id = $7,
			request_out_uid = $8, request_out_name = $9, request_out_email = $10,
			request_in_uid = $11, request_in_name = $12, request_in_email = $13,
			refresh_token = $14,
			updated_at = now()
		WHERE uid = $1
	`
	args := []any{a.UID, a.Email, a.Name}
	args = append(args, infoArgs(a.Partner)...)
	args = append(args, nullString(a.CoupleID))
	args = append(args, infoArgs(a.RequestOut)...)
	args = append(args, infoArgs(a.RequestIn)...)
	args = append(args, a.RefreshToken)

	ct, err := t.tx.Exec(t.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", a.UID, err)
	}
	if ct.RowsAffected() == 0 {
		return pairing.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes the record. Missing records are not an error.
func (t *accountTx) DeleteAccount(uid string) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM accounts WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", uid, err)
	}
	return nil
}

// CreateCouple inserts a couple record owned by exactly the two uids and
// returns its generated id.
func (t *accountTx) CreateCouple(ownerA, ownerB string) (string, error) {
	id := ulid.Make().String()
	query := `INSERT INTO couples (id, owners, created_at) VALUES ($1, $2, now())`
	if _, err := t.tx.Exec(t.ctx, query, id, pq.Array([]string{ownerA, ownerB})); err != nil {
		return "", fmt.Errorf("failed to create couple: %w", err)
	}
	return id, nil
}

// DeleteCouple removes a couple record. Idempotent.
func (t *accountTx) DeleteCouple(id string) error {
	if _, err := t.tx.Exec(t.ctx, `DELETE FROM couples WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete couple %s: %w", id, err)
	}
	return nil
}

// CreateAccount inserts a new account record. Accounts are normally created
// by the signup flow outside this service; this exists for provisioning and
// tests.
func (r *Repository) CreateAccount(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (uid, email, name, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	if _, err := r.pool.Exec(ctx, query, a.UID, a.Email, a.Name, a.RefreshToken); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount reads one account outside any transaction.
func (r *Repository) GetAccount(ctx context.Context, uid string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE uid = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, uid))
}

// GetCouple reads one couple record outside any transaction.
func (r *Repository) GetCouple(ctx context.Context, id string) (*model.CoupleRecord, error) {
	var (
		record model.CoupleRecord
		owners []string
	)
	query := `SELECT id, owners, created_at FROM couples WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(&record.ID, pq.Array(&owners), &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pairing.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple %s: %w", id, err)
	}
	if len(owners) == 2 {
		record.Owners = [2]string{owners[0], owners[1]}
	}
	return &record, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a                                     model.Account
		partnerUID, partnerName, partnerEmail *string
		coupleID                              *string
		outUID, outName, outEmail             *string
		inUID, inName, inEmail                *string
	)

	err := row.Scan(
		&a.UID, &a.Email, &a.Name,
		&partnerUID, &partnerName, &partnerEmail,
		&coupleID,
		&outUID, &outName, &outEmail,
		&inUID, &inName, &inEmail,
		&a.RefreshToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pairing.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Partner = toInfo(partnerUID, partnerName, partnerEmail)
	a.RequestOut = toInfo(outUID, outName, outEmail)
	a.RequestIn = toInfo(inUID, inName, inEmail)
	if coupleID != nil {
		a.CoupleID = *coupleID
	}
	return &a, nil
}

func toInfo(uid, name, email *string) *model.PartnerInfo {
	if uid == nil {
		return nil
	}
	info := model.PartnerInfo{UID: *uid}
	if name != nil {
		info.Name = *name
	}
	if email != nil {
		info.Email = *email
	}
	return &info
}

func infoArgs(info *model.PartnerInfo) []any {
	if info == nil {
		return []any{nil, nil, nil}
	}
	return []any{info.UID, info.Name, info.Email}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isRetryableTxError reports whether the transaction failed because of a
// concurrent conflicting write and should be re-run.
// 40001 is serialization_failure, 40P01 is deadlock_detected.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
