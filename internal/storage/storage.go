package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrChargeNotPending = errors.New("charge is not pending")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.releaseStaleClaims(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// releaseStaleClaims puts IN_PROGRESS charges back to PENDING on startup.
// Claims only live as long as the in-memory transfer queue, so any claim
// still present after a restart belongs to a job that died with the process;
// left alone it would make the charge unredeemable forever.
func (s *Storage) releaseStaleClaims() error {
	res, err := s.db.Exec(
		`UPDATE charges SET status = ? WHERE status = ?`,
		string(ChargePending), string(ChargeInProgress),
	)
	if err != nil {
		return fmt.Errorf("release stale claims: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("released stale charge claims from a previous run", "count", n)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			payment_identifier TEXT NOT NULL,
			handle TEXT NOT NULL UNIQUE,
			whatsapp_number TEXT NOT NULL UNIQUE,
			telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_handle ON users(handle)`,
		`CREATE INDEX IF NOT EXISTS idx_users_whatsapp ON users(whatsapp_number)`,
		`CREATE INDEX IF NOT EXISTS idx_users_telegram ON users(telegram_chat_id)`,

		`CREATE TABLE IF NOT EXISTS charges (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL REFERENCES users(id),
			customer_id TEXT,
			customer_handle TEXT,
			amount TEXT NOT NULL,
			note TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_charges_merchant ON charges(merchant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_charges_status ON charges(status)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Users ---

// SaveUser inserts or updates a user record mirrored from the processor.
func (s *Storage) SaveUser(ctx context.Context, u *User) error {
	now := time.Now().Unix()
	if !u.CreatedAt.IsZero() {
		now = u.CreatedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, payment_identifier, handle, whatsapp_number, telegram_chat_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			payment_identifier = excluded.payment_identifier,
			handle = excluded.handle,
			whatsapp_number = excluded.whatsapp_number`,
		u.ID, u.PaymentIdentifier, u.Handle, u.WhatsAppNumber, u.TelegramChatID, now,
	)
	return err
}

const userColumns = `id, payment_identifier, handle, whatsapp_number, telegram_chat_id, created_at`

func (s *Storage) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64

	err := row.Scan(&u.ID, &u.PaymentIdentifier, &u.Handle, &u.WhatsAppNumber, &u.TelegramChatID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// UserByHandle returns the user with the given @handle, case-insensitively.
func (s *Storage) UserByHandle(ctx context.Context, handle string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(handle) = lower(?)`, handle)
	return s.scanUser(row)
}

// UserByWhatsApp returns the user linked to a WhatsApp number.
func (s *Storage) UserByWhatsApp(ctx context.Context, number string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE whatsapp_number = ?`, number)
	return s.scanUser(row)
}

// UserByTelegramChatID returns the user linked to a Telegram chat.
func (s *Storage) UserByTelegramChatID(ctx context.Context, chatID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_chat_id = ?`, chatID)
	return s.scanUser(row)
}

// UserByID returns the user with the given processor ID.
func (s *Storage) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return s.scanUser(row)
}

// LinkTelegramChat records the Telegram chat ID a user messages from, so
// notifications can reach them without another handle lookup.
func (s *Storage) LinkTelegramChat(ctx context.Context, userID string, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id = ? WHERE id = ?`, chatID, userID)
	return err
}

// --- Charges ---

// SaveCharge stores a newly created charge as PENDING.
func (s *Storage) SaveCharge(ctx context.Context, c *Charge) error {
	now := time.Now().Unix()
	if !c.CreatedAt.IsZero() {
		now = c.CreatedAt.Unix()
	}
	status := c.Status
	if status == "" {
		status = ChargePending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO charges (id, merchant_id, amount, note, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.MerchantID, c.Amount.String(), c.Note, string(status), now,
	)
	return err
}

const chargeColumns = `id, merchant_id, customer_id, customer_handle, amount, note, status, created_at`

func scanCharge(scanner interface{ Scan(dest ...any) error }) (*Charge, error) {
	var c Charge
	var customerID, customerHandle, note sql.NullString
	var amount, status string
	var createdAt int64

	err := scanner.Scan(&c.ID, &c.MerchantID, &customerID, &customerHandle, &amount, &note, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.CustomerID = customerID.String
	c.CustomerHandle = customerHandle.String
	c.Note = note.String
	c.Status = ChargeStatus(status)
	c.CreatedAt = time.Unix(createdAt, 0)

	c.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse charge amount: %w", err)
	}

	return &c, nil
}

// ChargeByID returns a charge by its ID.
func (s *Storage) ChargeByID(ctx context.Context, id string) (*Charge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chargeColumns+` FROM charges WHERE id = ?`, id)
	return scanCharge(row)
}

// ClaimCharge transitions a charge from PENDING to IN_PROGRESS. The
// conditional update makes the claim atomic per charge ID, so two customers
// redeeming the same code concurrently can never both win.
func (s *Storage) ClaimCharge(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE charges SET status = ? WHERE id = ? AND status = ?`,
		string(ChargeInProgress), id, string(ChargePending),
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a missing charge from one in the wrong state.
		if _, err := s.ChargeByID(ctx, id); err != nil {
			return err
		}
		return ErrChargeNotPending
	}
	return nil
}

// CompleteCharge transitions a claimed charge to COMPLETE and records who
// paid it. COMPLETE is terminal.
func (s *Storage) CompleteCharge(ctx context.Context, id, customerID, customerHandle string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE charges SET status = ?, customer_id = ?, customer_handle = ?
		 WHERE id = ? AND status = ?`,
		string(ChargeComplete), customerID, customerHandle, id, string(ChargeInProgress),
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseCharge puts a claimed charge back to PENDING after a failed
// transfer, so the customer can retry.
func (s *Storage) ReleaseCharge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE charges SET status = ? WHERE id = ? AND status = ?`,
		string(ChargePending), id, string(ChargeInProgress),
	)
	return err
}

// --- Dashboard aggregates ---

// StatsForMerchant returns the overview aggregates for one merchant.
func (s *Storage) StatsForMerchant(ctx context.Context, merchantID string) (*MerchantStats, error) {
	var settled sql.NullString
	var stats MerchantStats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT SUM(CAST(amount AS REAL)) FROM charges WHERE merchant_id = ? AND status = 'COMPLETE'),
			(SELECT COUNT(*) FROM charges WHERE merchant_id = ?),
			(SELECT COUNT(DISTINCT customer_id) FROM charges WHERE merchant_id = ? AND customer_id IS NOT NULL)`,
		merchantID, merchantID, merchantID,
	).Scan(&settled, &stats.TotalCharges, &stats.UniqueCustomers)
	if err != nil {
		return nil, err
	}

	stats.PendingSettlement = decimal.Zero
	if settled.Valid {
		if d, err := decimal.NewFromString(settled.String); err == nil {
			stats.PendingSettlement = d
		}
	}

	return &stats, nil
}

// ChargesForMerchant returns a merchant's charges, newest first.
func (s *Storage) ChargesForMerchant(ctx context.Context, merchantID string) ([]Charge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chargeColumns+` FROM charges WHERE merchant_id = ? ORDER BY created_at DESC`,
		merchantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, *c)
	}

	return charges, rows.Err()
}

// CustomersForMerchant returns per-customer spend aggregates for the
// dashboard customers tab.
func (s *Storage) CustomersForMerchant(ctx context.Context, merchantID string) ([]MerchantCustomer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_handle, COUNT(*), SUM(CAST(amount AS REAL)), MAX(created_at)
		FROM charges
		WHERE merchant_id = ? AND customer_handle IS NOT NULL AND customer_handle != ''
		GROUP BY customer_handle
		ORDER BY SUM(CAST(amount AS REAL)) DESC`,
		merchantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []MerchantCustomer
	for rows.Next() {
		var mc MerchantCustomer
		var total float64
		var lastSeen int64

		if err := rows.Scan(&mc.Handle, &mc.ChargeCount, &total, &lastSeen); err != nil {
			return nil, err
		}

		mc.TotalSpent = decimal.NewFromFloat(total).Round(2)
		mc.LastSeenAt = time.Unix(lastSeen, 0)
		customers = append(customers, mc)
	}

	return customers, rows.Err()
}
