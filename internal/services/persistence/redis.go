package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// RedisSnapshotter stores the snapshot as one JSON value at a fixed key.
type RedisSnapshotter struct {
	client *redis.Client
	key    string
	logger *logrus.Logger
}

func NewRedisSnapshotter(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisSnapshotter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSnapshotter{
		client: client,
		key:    cfg.Key,
		logger: logger,
	}, nil
}

func (r *RedisSnapshotter) Load(ctx context.Context) (map[string]*models.UserRecord, error) {
	data, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		r.logger.WithField("key", r.key).Info("Snapshot key not found, starting empty")
		return map[string]*models.UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from redis: %w", err)
	}

	var snapshot map[string]*models.UserRecord
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *RedisSnapshotter) Save(ctx context.Context, snapshot map[string]*models.UserRecord) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	// No expiration: the snapshot is the system of record.
	return r.client.Set(ctx, r.key, data, 0).Err()
}

// RecordPayment appends the audit entry to a list at <key>:payments. RPUSH
// keeps entries in payment order without touching the snapshot value.
func (r *RedisSnapshotter) RecordPayment(ctx context.Context, payment models.PaymentRecord) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}
	return r.client.RPush(ctx, r.key+":payments", data).Err()
}

func (r *RedisSnapshotter) Payments(ctx context.Context) ([]models.PaymentRecord, error) {
	entries, err := r.client.LRange(ctx, r.key+":payments", 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payments from redis: %w", err)
	}

	payments := make([]models.PaymentRecord, 0, len(entries))
	for _, entry := range entries {
		var p models.PaymentRecord
		if err := json.Unmarshal([]byte(entry), &p); err != nil {
			return nil, fmt.Errorf("failed to parse payment entry: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (r *RedisSnapshotter) Close() error {
	return r.client.Close()
}
