package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// SQLiteSnapshotter stores one row per user, record serialized as JSON.
type SQLiteSnapshotter struct {
	conn   *sql.DB
	logger *logrus.Logger
}

func NewSQLiteSnapshotter(dbPath string, logger *logrus.Logger) (*SQLiteSnapshotter, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &SQLiteSnapshotter{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotter) migrate() error {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}
	_, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		charge_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		paid_at DATETIME NOT NULL
	)`)
	return err
}

func (s *SQLiteSnapshotter) Load(ctx context.Context) (map[string]*models.UserRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT user_id, record FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]*models.UserRecord)
	for rows.Next() {
		var userID, raw string
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}

		var rec models.UserRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Skipping corrupt user record")
			continue
		}
		snapshot[userID] = &rec
	}
	return snapshot, rows.Err()
}

func (s *SQLiteSnapshotter) Save(ctx context.Context, snapshot map[string]*models.UserRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (user_id, record, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for userID, rec := range snapshot {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", userID, err)
		}
		if _, err := stmt.ExecContext(ctx, userID, string(data)); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", userID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteSnapshotter) RecordPayment(ctx context.Context, payment models.PaymentRecord) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO payments (user_id, charge_id, amount, currency, paid_at) VALUES (?, ?, ?, ?, ?)`,
		payment.UserID, payment.ChargeID, payment.Amount, payment.Currency, payment.PaidAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshotter) Payments(ctx context.Context) ([]models.PaymentRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT user_id, charge_id, amount, currency, paid_at FROM payments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []models.PaymentRecord{}
	for rows.Next() {
		var p models.PaymentRecord
		if err := rows.Scan(&p.UserID, &p.ChargeID, &p.Amount, &p.Currency, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *SQLiteSnapshotter) Close() error {
	return s.conn.Close()
}
