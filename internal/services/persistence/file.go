package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// FileSnapshotter stores the snapshot as a single JSON file. Payment audit
// entries live in a sibling payments.json next to the snapshot.
type FileSnapshotter struct {
	path         string
	paymentsPath string
	logger       *logrus.Logger
}

func NewFileSnapshotter(path string, logger *logrus.Logger) *FileSnapshotter {
	return &FileSnapshotter{
		path:         path,
		paymentsPath: filepath.Join(filepath.Dir(path), "payments.json"),
		logger:       logger,
	}
}

func (f *FileSnapshotter) Load(ctx context.Context) (map[string]*models.UserRecord, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.logger.WithField("path", f.path).Info("Snapshot file not found, starting empty")
		return map[string]*models.UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot map[string]*models.UserRecord
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snapshot, nil
}

func (f *FileSnapshotter) Save(ctx context.Context, snapshot map[string]*models.UserRecord) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Write-then-rename so a crash mid-save never truncates the snapshot.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// RecordPayment appends one audit entry and rewrites the payments file with
// the same temp-then-rename dance as the snapshot.
func (f *FileSnapshotter) RecordPayment(ctx context.Context, payment models.PaymentRecord) error {
	payments, err := f.Payments(ctx)
	if err != nil {
		return err
	}
	payments = append(payments, payment)

	data, err := json.MarshalIndent(payments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal payments: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.paymentsPath), 0o755); err != nil {
		return fmt.Errorf("failed to create payments directory: %w", err)
	}
	tmp := f.paymentsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write payments: %w", err)
	}
	if err := os.Rename(tmp, f.paymentsPath); err != nil {
		return fmt.Errorf("failed to replace payments: %w", err)
	}
	return nil
}

func (f *FileSnapshotter) Payments(ctx context.Context) ([]models.PaymentRecord, error) {
	data, err := os.ReadFile(f.paymentsPath)
	if os.IsNotExist(err) {
		return []models.PaymentRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payments: %w", err)
	}

	var payments []models.PaymentRecord
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, fmt.Errorf("failed to parse payments: %w", err)
	}
	return payments, nil
}

func (f *FileSnapshotter) Close() error { return nil }
