// Package persistence snapshots the user store to durable storage. The
// snapshot is a string-keyed map of user records; load of a missing snapshot
// yields an empty store, save failures are logged by the caller and never
// fatal.
package persistence

import (
	"context"
	"fmt"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Snapshotter persists and restores the full keyed map of user records.
// Payments are append-only audit entries, stored independently of the
// snapshot so an older snapshot overwrite never loses a charge ID.
type Snapshotter interface {
	Load(ctx context.Context) (map[string]*models.UserRecord, error)
	Save(ctx context.Context, snapshot map[string]*models.UserRecord) error
	RecordPayment(ctx context.Context, payment models.PaymentRecord) error
	Payments(ctx context.Context) ([]models.PaymentRecord, error)
	Close() error
}

// Manager selects and wraps the configured snapshot backend.
type Manager struct {
	backend Snapshotter
	logger  *logrus.Logger
}

// NewManager creates a snapshot manager for the configured backend.
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var (
		backend Snapshotter
		err     error
	)

	switch cfg.Storage.Type {
	case "file":
		backend = NewFileSnapshotter(cfg.Storage.File.Path, logger)
	case "redis":
		backend, err = NewRedisSnapshotter(&cfg.Storage.Redis, logger)
	case "sqlite":
		backend, err = NewSQLiteSnapshotter(cfg.Storage.SQLite.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	return &Manager{backend: backend, logger: logger}, nil
}

func (m *Manager) Load(ctx context.Context) (map[string]*models.UserRecord, error) {
	return m.backend.Load(ctx)
}

func (m *Manager) Save(ctx context.Context, snapshot map[string]*models.UserRecord) error {
	return m.backend.Save(ctx, snapshot)
}

func (m *Manager) RecordPayment(ctx context.Context, payment models.PaymentRecord) error {
	return m.backend.RecordPayment(ctx, payment)
}

func (m *Manager) Payments(ctx context.Context) ([]models.PaymentRecord, error) {
	return m.backend.Payments(ctx)
}

func (m *Manager) Close() error {
	return m.backend.Close()
}
