package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testPolicy() Policy {
	return Policy{
		DefaultModel: "google/gemini-2.5-flash",
		WindowSize:   10,
		Tiers: map[models.Tier]TierPolicy{
			models.TierLite: {
				DailyLimit:   10,
				MonthlyLimit: 50,
				Models:       []string{"openai/gpt-4.1", "google/gemini-2.5-flash"},
			},
			models.TierPlus: {
				DailyLimit:   50,
				MonthlyLimit: 500,
				Models: []string{
					"openai/gpt-4.1",
					"google/gemini-2.5-flash",
					"anthropic/claude-sonnet-4",
					"google/gemini-2.5-pro",
				},
			},
		},
	}
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(testPolicy(), clock, logger), clock
}

func TestGetOrCreateDefaults(t *testing.T) {
	s, clock := newTestStore(t)

	rec := s.GetOrCreate(1)
	assert.Equal(t, models.TierLite, rec.Tier)
	assert.Equal(t, "google/gemini-2.5-flash", rec.Model)
	assert.Empty(t, rec.Context)
	assert.Empty(t, rec.SystemPrompt)
	assert.Nil(t, rec.SubscriptionEndDate)
	assert.Equal(t, 0, rec.Counts.Daily)
	assert.Equal(t, clock.now, rec.Counts.LastDailyReset)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	s, _ := newTestStore(t)

	first := s.GetOrCreate(1)
	second := s.GetOrCreate(1)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Len())
}

func TestAppendMessageCountsBoth(t *testing.T) {
	s, _ := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))
	s.AppendMessage(1, models.TextMessage(models.RoleAssistant, "hello"))

	rec := s.GetOrCreate(1)
	assert.Len(t, rec.Context, 2)
	assert.Equal(t, 2, rec.Counts.Daily)
	assert.Equal(t, 2, rec.Counts.Monthly)
}

func TestRecentContextWindow(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 15; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, string(rune('a'+i))))
	}

	recent := s.RecentContext(1, 10)
	require.Len(t, recent, 10)
	assert.Equal(t, "f", recent[0].Content[0].Text)
	assert.Equal(t, "o", recent[9].Content[0].Text)

	// Shorter history returns everything.
	s.ClearContext(1)
	s.AppendMessage(1, models.TextMessage(models.RoleUser, "only"))
	assert.Len(t, s.RecentContext(1, 10), 1)
}

func TestRecentContextPolicyDefaultWindow(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 15; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, string(rune('a'+i))))
	}

	// Zero falls back to the policy window of 10.
	recent := s.RecentContext(1, 0)
	require.Len(t, recent, 10)
	assert.Equal(t, "f", recent[0].Content[0].Text)
	assert.Equal(t, "o", recent[9].Content[0].Text)
}

func TestSystemPrompt(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Empty(t, s.SystemPrompt(1))
	s.SetSystemPrompt(1, "be terse")
	assert.Equal(t, "be terse", s.SystemPrompt(1))
	s.ClearSystemPrompt(1)
	assert.Empty(t, s.SystemPrompt(1))
}

func TestClearContextLeavesCounters(t *testing.T) {
	s, _ := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))
	s.ClearContext(1)

	rec := s.GetOrCreate(1)
	assert.Empty(t, rec.Context)
	assert.Equal(t, 1, rec.Counts.Daily)
	assert.Equal(t, 1, rec.Counts.Monthly)
}

func TestSetModelTierGated(t *testing.T) {
	s, _ := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))

	// Plus-only model rejected for lite, state untouched.
	ok := s.SetModel(1, "anthropic/claude-sonnet-4")
	assert.False(t, ok)
	rec := s.GetOrCreate(1)
	assert.Equal(t, "google/gemini-2.5-flash", rec.Model)
	assert.Len(t, rec.Context, 1)

	// Allowed model switches and clears context.
	ok = s.SetModel(1, "openai/gpt-4.1")
	assert.True(t, ok)
	rec = s.GetOrCreate(1)
	assert.Equal(t, "openai/gpt-4.1", rec.Model)
	assert.Empty(t, rec.Context)

	// Plus tier unlocks the larger menu.
	s.Upgrade(1, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC))
	assert.True(t, s.SetModel(1, "anthropic/claude-sonnet-4"))
}

func TestResetModelKeepsContext(t *testing.T) {
	s, _ := newTestStore(t)

	require.True(t, s.SetModel(1, "openai/gpt-4.1"))
	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))

	s.ResetModel(1)
	rec := s.GetOrCreate(1)
	assert.Equal(t, "google/gemini-2.5-flash", rec.Model)
	assert.Len(t, rec.Context, 1)
}

func TestAllowedModelsByTier(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Len(t, s.AllowedModels(1), 2)
	s.Upgrade(1, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC))
	assert.Len(t, s.AllowedModels(1), 4)
}

func TestDailyResetOnDayBoundary(t *testing.T) {
	s, clock := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))
	s.AppendMessage(1, models.TextMessage(models.RoleAssistant, "hello"))

	profile := s.Profile(1)
	assert.Equal(t, 8, profile.DailyRemaining)
	assert.Equal(t, 48, profile.MonthlyRemaining)

	// Next UTC day: daily resets, monthly untouched.
	clock.advance(24 * time.Hour)
	profile = s.Profile(1)
	assert.Equal(t, 10, profile.DailyRemaining)
	assert.Equal(t, 48, profile.MonthlyRemaining)
}

func TestMonthlyResetOnMonthBoundary(t *testing.T) {
	s, clock := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "hi"))

	// March 15 -> April 15 resets both.
	clock.advance(31 * 24 * time.Hour)
	profile := s.Profile(1)
	assert.Equal(t, 10, profile.DailyRemaining)
	assert.Equal(t, 50, profile.MonthlyRemaining)
}

func TestCanSendMessageDailyLimit(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 9; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	}
	assert.True(t, s.CanSendMessage(1), "one below the daily limit")

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	assert.False(t, s.CanSendMessage(1), "at the daily limit")
}

func TestCanSendMessageMonthlyLimit(t *testing.T) {
	s, clock := newTestStore(t)

	// Burn the monthly quota across days so daily headroom stays open.
	for day := 0; day < 5; day++ {
		for i := 0; i < 10; i++ {
			s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
		}
		clock.advance(24 * time.Hour)
	}

	profile := s.Profile(1)
	assert.Equal(t, 10, profile.DailyRemaining)
	assert.Equal(t, 0, profile.MonthlyRemaining)
	assert.False(t, s.CanSendMessage(1), "monthly limit binds despite daily headroom")
}

func TestCanSendMessageRefreshesFirst(t *testing.T) {
	s, clock := newTestStore(t)

	for i := 0; i < 10; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	}
	require.False(t, s.CanSendMessage(1))

	// The check itself must roll the counters over the boundary.
	clock.advance(24 * time.Hour)
	assert.True(t, s.CanSendMessage(1))
}

func TestUpgradeResetsCounters(t *testing.T) {
	s, clock := newTestStore(t)

	for i := 0; i < 7; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	}

	end := clock.now.AddDate(0, 0, 30)
	s.Upgrade(1, end)

	profile := s.Profile(1)
	assert.Equal(t, models.TierPlus, profile.Tier)
	assert.Equal(t, 50, profile.DailyRemaining)
	assert.Equal(t, 500, profile.MonthlyRemaining)
	require.NotNil(t, profile.SubscriptionEndDate)
	assert.Equal(t, end, *profile.SubscriptionEndDate)

	// Upgrading again only moves the end date.
	s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	later := end.AddDate(0, 0, 30)
	s.Upgrade(1, later)
	profile = s.Profile(1)
	assert.Equal(t, later, *profile.SubscriptionEndDate)
	assert.Equal(t, 50, profile.DailyRemaining)
}

func TestRemainingMayGoNegative(t *testing.T) {
	s, _ := newTestStore(t)

	s.Upgrade(1, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 20; i++ {
		s.AppendMessage(1, models.TextMessage(models.RoleUser, "x"))
	}

	// Simulate a downgrade: restore the record under a lite tier.
	snapshot := s.Snapshot()
	snapshot["1"].Tier = models.TierLite
	snapshot["1"].SubscriptionEndDate = nil
	s.Restore(snapshot)

	profile := s.Profile(1)
	assert.Equal(t, -10, profile.DailyRemaining, "stored state is never clamped")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s, clock := newTestStore(t)

	s.SetSystemPrompt(7, "be brief")
	s.AppendMessage(7, models.Message{
		Role: models.RoleUser,
		Content: []models.ContentPart{
			models.NewTextPart("what is this?"),
			models.NewImagePart([]byte{0xff, 0xd8}, "image/jpeg"),
			models.NewFilePart("doc.pdf", []byte("%PDF"), "application/pdf"),
		},
	})
	s.Upgrade(7, clock.now.AddDate(0, 0, 30))
	s.AppendMessage(7, models.TextMessage(models.RoleAssistant, "a photo"))

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var loaded map[string]*models.UserRecord
	require.NoError(t, json.Unmarshal(data, &loaded))

	restored, _ := newTestStore(t)
	restored.Restore(loaded)

	assert.Equal(t, s.GetOrCreate(7), restored.GetOrCreate(7))
}

func TestRestoreSkipsInvalidKeys(t *testing.T) {
	s, _ := newTestStore(t)

	s.Restore(map[string]*models.UserRecord{
		"42":       {Model: "openai/gpt-4.1", Tier: models.TierLite},
		"not-an-id": {},
	})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "openai/gpt-4.1", s.Model(42))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s, _ := newTestStore(t)

	s.AppendMessage(1, models.TextMessage(models.RoleUser, "original"))
	snapshot := s.Snapshot()
	snapshot["1"].Context[0].Content[0].Text = "mutated"

	assert.Equal(t, "original", s.GetOrCreate(1).Context[0].Content[0].Text)
}

func TestRollCountersPure(t *testing.T) {
	base := time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC)
	counts := models.MessageCounts{
		Daily:            5,
		Monthly:          20,
		LastDailyReset:   base,
		LastMonthlyReset: base,
	}

	// Same day: untouched.
	same := rollCounters(counts, base.Add(30*time.Minute))
	assert.Equal(t, counts, same)

	// Year boundary resets both.
	rolled := rollCounters(counts, base.Add(2*time.Hour))
	assert.Equal(t, 0, rolled.Daily)
	assert.Equal(t, 0, rolled.Monthly)
}
