// Package sqlite is the local development backend. It implements the same
// ports as the Supabase client on top of a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlite")

const timeLayout = time.RFC3339

// Store implements port.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================
// Transactions
// ============================================================

// ListTransactions returns every transaction of the user, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]domain.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.queryTransactions(ctx,
		`SELECT id, type, amount, category, source, date, note, created_at
		   FROM transactions WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
}

// ListLegacyTransactions always returns nothing: the local schema has no legacy table.
func (s *Store) ListLegacyTransactions(context.Context, string) ([]domain.RawRecord, error) {
	return nil, nil
}

// ListRecentTransactions returns up to limit transactions, newest first.
func (s *Store) ListRecentTransactions(ctx context.Context, userID string, limit int) ([]domain.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListRecentTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("limit", limit))

	return s.queryTransactions(ctx,
		`SELECT id, type, amount, category, source, date, note, created_at
		   FROM transactions WHERE user_id = ? ORDER BY date DESC, created_at DESC LIMIT ?`, userID, limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		var id, typ, amount, category, source, date, note, createdAt string
		if err := rows.Scan(&id, &typ, &amount, &category, &source, &date, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, domain.RawRecord{
			ID: id,
			Fields: map[string]any{
				"id":         id,
				"type":       typ,
				"amount":     amount,
				"category":   category,
				"source":     source,
				"date":       date,
				"note":       note,
				"created_at": createdAt,
			},
		})
	}
	return out, rows.Err()
}

// CreateTransaction inserts a transaction with a fresh UUID.
func (s *Store) CreateTransaction(ctx context.Context, rec *domain.NewTransactionRecord) (string, error) {
	ctx, span := tracer.Start(ctx, "SQLite.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", rec.UserID))

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, category, source, date, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.UserID, string(rec.Type), rec.Amount.String(), rec.Category, rec.Source,
		rec.Date.String(), rec.Note, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// DeleteTransaction removes one of the user's transactions.
func (s *Store) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteTransaction")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, transactionID, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	return nil
}

// ============================================================
// Profiles
// ============================================================

const profileColumns = `user_id, full_name, COALESCE(username, ''), email, mobile, currency, profile_picture, created_at`

// GetProfile returns the user's profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetProfile")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	return scanProfile(row, userID)
}

// FindProfileByUsername looks a profile up by username.
func (s *Store) FindProfileByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "SQLite.FindProfileByUsername")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username)
	return scanProfile(row, username)
}

func scanProfile(row *sql.Row, key string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var createdAt string
	err := row.Scan(&p.UserID, &p.FullName, &p.Username, &p.Email, &p.Mobile, &p.Currency, &p.ProfilePicture, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &p, nil
}

// UpsertProfile inserts or replaces the profile. A username held by
// another user is reported as ErrConflict.
func (s *Store) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	ctx, span := tracer.Start(ctx, "SQLite.UpsertProfile")
	defer span.End()

	var username any
	if p.Username != "" {
		username = p.Username
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, full_name, username, email, mobile, currency, profile_picture, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   full_name = excluded.full_name,
		   username = excluded.username,
		   email = excluded.email,
		   mobile = excluded.mobile,
		   currency = excluded.currency,
		   profile_picture = excluded.profile_picture`,
		p.UserID, p.FullName, username, p.Email, p.Mobile, p.Currency, p.ProfilePicture,
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "username is already taken"}
		}
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ============================================================
// Family
// ============================================================

// ListFamilyMemberIDs returns the ids linked to the user.
func (s *Store) ListFamilyMemberIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListFamilyMemberIDs")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT member_id FROM family_links WHERE user_id = ? ORDER BY member_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query family links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateFamilyRequest stores a new request.
func (s *Store) CreateFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateFamilyRequest")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_requests (id, from_user_id, from_username, to_user_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.FromUserID, req.FromUsername, req.ToUserID, req.Status, req.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert family request: %w", err)
	}
	return nil
}

const requestColumns = `id, from_user_id, from_username, to_user_id, status, created_at`

func scanRequest(scan func(...any) error) (domain.FamilyRequest, error) {
	var r domain.FamilyRequest
	var createdAt string
	if err := scan(&r.ID, &r.FromUserID, &r.FromUsername, &r.ToUserID, &r.Status, &createdAt); err != nil {
		return r, err
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return r, nil
}

// GetFamilyRequest fetches a request by id.
func (s *Store) GetFamilyRequest(ctx context.Context, requestID string) (*domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetFamilyRequest")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM family_requests WHERE id = ?`, requestID)
	r, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "family request", ID: requestID}
	}
	if err != nil {
		return nil, fmt.Errorf("scan family request: %w", err)
	}
	return &r, nil
}

// HasPendingRequest reports whether from has a pending request to to.
func (s *Store) HasPendingRequest(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_requests WHERE from_user_id = ? AND to_user_id = ? AND status = ?`,
		fromUserID, toUserID, domain.RequestPending,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count pending requests: %w", err)
	}
	return n > 0, nil
}

// ListPendingRequests returns pending requests addressed to the user, newest first.
func (s *Store) ListPendingRequests(ctx context.Context, toUserID string) ([]domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListPendingRequests")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM family_requests WHERE to_user_id = ? AND status = ? ORDER BY created_at DESC`,
		toUserID, domain.RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query family requests: %w", err)
	}
	defer rows.Close()

	var out []domain.FamilyRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan family request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AcceptFamilyRequest links both users and marks the request accepted in
// one database transaction.
func (s *Store) AcceptFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error {
	ctx, span := tracer.Start(ctx, "SQLite.AcceptFamilyRequest")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", req.ID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	link := `INSERT OR IGNORE INTO family_links (user_id, member_id) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, link, req.FromUserID, req.ToUserID); err != nil {
		return fmt.Errorf("link %s: %w", req.FromUserID, err)
	}
	if _, err := tx.ExecContext(ctx, link, req.ToUserID, req.FromUserID); err != nil {
		return fmt.Errorf("link %s: %w", req.ToUserID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE family_requests SET status = ? WHERE id = ?`, domain.RequestAccepted, req.ID); err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return tx.Commit()
}

// UpdateFamilyRequestStatus sets the status of a request.
func (s *Store) UpdateFamilyRequestStatus(ctx context.Context, requestID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE family_requests SET status = ? WHERE id = ?`, status, requestID)
	if err != nil {
		return fmt.Errorf("update family request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "family request", ID: requestID}
	}
	return nil
}

// RemoveFamilyLink deletes the link in both directions.
func (s *Store) RemoveFamilyLink(ctx context.Context, userID, memberID string) error {
	ctx, span := tracer.Start(ctx, "SQLite.RemoveFamilyLink")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM family_links WHERE (user_id = ? AND member_id = ?) OR (user_id = ? AND member_id = ?)`,
		userID, memberID, memberID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete family link: %w", err)
	}
	return nil
}

// CreateSharedExpense stores a new shared expense. SharedWith is kept as a
// JSON array.
func (s *Store) CreateSharedExpense(ctx context.Context, e *domain.SharedExpense) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateSharedExpense")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", e.UserID))

	sharedWith, err := json.Marshal(e.SharedWith)
	if err != nil {
		return fmt.Errorf("encode shared_with: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shared_expenses (id, user_id, description, amount, category, date, shared_with, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Description, e.Amount.String(), e.Category, e.Date.String(),
		string(sharedWith), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert shared expense: %w", err)
	}
	return nil
}

// ListSharedExpenses returns up to limit expenses created by the user, newest first.
func (s *Store) ListSharedExpenses(ctx context.Context, userID string, limit int) ([]domain.SharedExpense, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListSharedExpenses")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("limit", limit))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, category, date, shared_with, created_at
		   FROM shared_expenses WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query shared expenses: %w", err)
	}
	defer rows.Close()

	var out []domain.SharedExpense
	for rows.Next() {
		var e domain.SharedExpense
		var amount, date, sharedWith, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &amount, &e.Category, &date, &sharedWith, &createdAt); err != nil {
			return nil, fmt.Errorf("scan shared expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("shared expense %s amount: %w", e.ID, err)
		}
		if e.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("shared expense %s date: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(sharedWith), &e.SharedWith); err != nil {
			return nil, fmt.Errorf("shared expense %s shared_with: %w", e.ID, err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
