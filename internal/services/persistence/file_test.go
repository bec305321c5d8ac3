package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() map[string]*models.UserRecord {
	end := time.Date(2025, time.April, 14, 12, 0, 0, 0, time.UTC)
	return map[string]*models.UserRecord{
		"100": {
			Context: []models.Message{
				models.TextMessage(models.RoleUser, "hello"),
				{
					Role: models.RoleUser,
					Content: []models.ContentPart{
						models.NewTextPart("what is in this file?"),
						models.NewFilePart("report.pdf", []byte("%PDF-1.4"), "application/pdf"),
					},
				},
			},
			SystemPrompt:        "answer briefly",
			Model:               "openai/gpt-4.1",
			Tier:                models.TierPlus,
			SubscriptionEndDate: &end,
			Counts: models.MessageCounts{
				Daily:            3,
				Monthly:          17,
				LastDailyReset:   time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
				LastMonthlyReset: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		"200": {
			Context: []models.Message{},
			Model:   "google/gemini-2.5-flash",
			Tier:    models.TierLite,
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestFileSnapshotterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	snap := NewFileSnapshotter(path, quietLogger())
	ctx := context.Background()

	want := testSnapshot()
	require.NoError(t, snap.Save(ctx, want))

	got, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileSnapshotterMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "users.json")
	snap := NewFileSnapshotter(path, quietLogger())

	got, err := snap.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileSnapshotterOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	snap := NewFileSnapshotter(path, quietLogger())
	ctx := context.Background()

	require.NoError(t, snap.Save(ctx, testSnapshot()))
	require.NoError(t, snap.Save(ctx, map[string]*models.UserRecord{}))

	got, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testPayments() []models.PaymentRecord {
	return []models.PaymentRecord{
		{
			UserID:   100,
			ChargeID: "stars_charge_abc",
			Amount:   300,
			Currency: "XTR",
			PaidAt:   time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			UserID:   200,
			ChargeID: "stars_charge_def",
			Amount:   300,
			Currency: "XTR",
			PaidAt:   time.Date(2025, time.March, 16, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestFileSnapshotterPayments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	snap := NewFileSnapshotter(path, quietLogger())
	ctx := context.Background()

	got, err := snap.Payments(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "no payments before any are recorded")

	want := testPayments()
	for _, p := range want {
		require.NoError(t, snap.RecordPayment(ctx, p))
	}

	got, err = snap.Payments(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The audit file is independent of snapshot overwrites.
	require.NoError(t, snap.Save(ctx, map[string]*models.UserRecord{}))
	got, err = snap.Payments(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteSnapshotterPayments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	snap, err := NewSQLiteSnapshotter(path, quietLogger())
	require.NoError(t, err)
	defer snap.Close()
	ctx := context.Background()

	want := testPayments()
	for _, p := range want {
		require.NoError(t, snap.RecordPayment(ctx, p))
	}

	got, err := snap.Payments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].ChargeID, got[0].ChargeID)
	assert.Equal(t, want[1].ChargeID, got[1].ChargeID)
	assert.Equal(t, want[0].UserID, got[0].UserID)
	assert.Equal(t, 300, got[0].Amount)
	assert.Equal(t, "XTR", got[0].Currency)
	assert.True(t, want[0].PaidAt.Equal(got[0].PaidAt))
}

func TestSQLiteSnapshotterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	snap, err := NewSQLiteSnapshotter(path, quietLogger())
	require.NoError(t, err)
	defer snap.Close()
	ctx := context.Background()

	want := testSnapshot()
	require.NoError(t, snap.Save(ctx, want))

	got, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Upsert keeps one row per user.
	want["100"].Counts.Daily = 4
	require.NoError(t, snap.Save(ctx, want))
	got, err = snap.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got["100"].Counts.Daily)
}
