// Package store is the per-user state and quota engine: it owns conversation
// context, system prompts, model selection, tier and rolling message counters,
// and makes all quota-admission decisions. It makes no network or transport
// calls; persistence happens through Snapshot/Restore driven by the caller.
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the single source of truth for per-user conversational and
// billing state. Access is serialized with a mutex so it stays correct under
// concurrent handler dispatch.
type Store struct {
	mu     sync.Mutex
	users  map[int64]*models.UserRecord
	policy Policy
	clock  Clock
	logger *logrus.Logger
}

// New creates a store with the given policy and clock.
func New(policy Policy, clock Clock, logger *logrus.Logger) *Store {
	return &Store{
		users:  make(map[int64]*models.UserRecord),
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

// GetOrCreate returns a copy of the user's record, creating it with defaults
// on first reference. It never fails and has no counter side effects.
func (s *Store) GetOrCreate(userID int64) models.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *copyRecord(s.getOrCreateLocked(userID))
}

func (s *Store) getOrCreateLocked(userID int64) *models.UserRecord {
	if rec, ok := s.users[userID]; ok {
		return rec
	}

	now := s.clock.Now().UTC()
	rec := &models.UserRecord{
		Context: []models.Message{},
		Model:   s.policy.DefaultModel,
		Tier:    models.TierLite,
		Counts: models.MessageCounts{
			LastDailyReset:   now,
			LastMonthlyReset: now,
		},
	}
	s.users[userID] = rec

	s.logger.WithField("user_id", userID).Debug("Created user record")
	return rec
}

// AppendMessage appends to the user's context and counts the message against
// both quotas. Every append is billable, assistant replies included; the
// /profile numbers reflect that.
func (s *Store) AppendMessage(userID int64, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(userID)
	rec.Context = append(rec.Context, msg)
	rec.Counts.Daily++
	rec.Counts.Monthly++
}

// RecentContext returns up to windowSize most recent messages in original
// order. A windowSize of zero or less means the policy's configured window.
// Read-only, no side effects.
func (s *Store) RecentContext(userID int64, windowSize int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if windowSize <= 0 {
		windowSize = s.policy.WindowSize
	}

	rec := s.getOrCreateLocked(userID)
	ctx := rec.Context
	if len(ctx) > windowSize {
		ctx = ctx[len(ctx)-windowSize:]
	}

	out := make([]models.Message, len(ctx))
	copy(out, ctx)
	return out
}

// SystemPrompt returns the user's system prompt, empty if unset.
func (s *Store) SystemPrompt(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID).SystemPrompt
}

// SetSystemPrompt sets the user's system prompt.
func (s *Store) SetSystemPrompt(userID int64, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(userID).SystemPrompt = prompt
}

// ClearSystemPrompt removes the user's system prompt.
func (s *Store) ClearSystemPrompt(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(userID).SystemPrompt = ""
}

// ClearContext empties the conversation context, leaving counters, model and
// tier untouched.
func (s *Store) ClearContext(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(userID).Context = []models.Message{}
}

// Model returns the user's currently selected model.
func (s *Store) Model(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID).Model
}

// SetModel switches the user's model. It succeeds only when the model belongs
// to the user's tier menu; a successful switch invalidates the conversation
// context. On failure state is unchanged and false is returned.
func (s *Store) SetModel(userID int64, modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(userID)
	if !s.policy.allows(rec.Tier, modelID) {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"model":   modelID,
			"tier":    rec.Tier,
		}).Warn("Model not allowed for tier")
		return false
	}

	rec.Model = modelID
	rec.Context = []models.Message{}
	return true
}

// ResetModel forces the model back to the default. Unlike SetModel it does
// not touch the context.
func (s *Store) ResetModel(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(userID).Model = s.policy.DefaultModel
}

// AllowedModels returns the model menu for the user's current tier.
func (s *Store) AllowedModels(userID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp := s.policy.tier(s.getOrCreateLocked(userID).Tier)
	out := make([]string, len(tp.Models))
	copy(out, tp.Models)
	return out
}

// Profile applies the lazy counter resets and returns the read projection.
// Remaining values are not clamped; they can be negative after a downgrade.
func (s *Store) Profile(userID int64) models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(userID)
	rec.Counts = rollCounters(rec.Counts, s.clock.Now())

	tp := s.policy.tier(rec.Tier)
	var endDate *time.Time
	if rec.SubscriptionEndDate != nil {
		d := *rec.SubscriptionEndDate
		endDate = &d
	}

	return models.UserProfile{
		UserID:              userID,
		Tier:                rec.Tier,
		SubscriptionEndDate: endDate,
		DailyRemaining:      tp.DailyLimit - rec.Counts.Daily,
		DailyLimit:          tp.DailyLimit,
		MonthlyRemaining:    tp.MonthlyLimit - rec.Counts.Monthly,
		MonthlyLimit:        tp.MonthlyLimit,
		Model:               rec.Model,
	}
}

// CanSendMessage reports whether the user has headroom under both quotas.
// Counters are refreshed first, so a check straddling a UTC boundary never
// denies on stale numbers.
func (s *Store) CanSendMessage(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(userID)
	rec.Counts = rollCounters(rec.Counts, s.clock.Now())

	tp := s.policy.tier(rec.Tier)
	return rec.Counts.Daily < tp.DailyLimit && rec.Counts.Monthly < tp.MonthlyLimit
}

// Upgrade moves the user to plus, stores the subscription end date, zeroes
// both counters and stamps both reset timestamps. Calling it while already
// plus just overwrites the end date.
func (s *Store) Upgrade(userID int64, subscriptionEnd time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(userID)
	now := s.clock.Now().UTC()

	rec.Tier = models.TierPlus
	end := subscriptionEnd
	rec.SubscriptionEndDate = &end
	rec.Counts = models.MessageCounts{
		LastDailyReset:   now,
		LastMonthlyReset: now,
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"expires_at": subscriptionEnd,
	}).Info("User upgraded to plus")
}

// Snapshot returns a deep copy of all records keyed by stringified user ID,
// the shape the persistence collaborator serializes.
func (s *Store) Snapshot() map[string]*models.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*models.UserRecord, len(s.users))
	for id, rec := range s.users {
		out[strconv.FormatInt(id, 10)] = copyRecord(rec)
	}
	return out
}

// Restore replaces the store contents with a loaded snapshot. Records with
// unparsable keys are logged and skipped.
func (s *Store) Restore(snapshot map[string]*models.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[int64]*models.UserRecord, len(snapshot))
	for key, rec := range snapshot {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logger.WithField("key", key).Warn("Skipping record with invalid user id")
			continue
		}
		restored := copyRecord(rec)
		if restored.Model == "" {
			restored.Model = s.policy.DefaultModel
		}
		if restored.Tier == "" {
			restored.Tier = models.TierLite
		}
		if restored.Context == nil {
			restored.Context = []models.Message{}
		}
		s.users[id] = restored
	}

	s.logger.WithField("users", len(s.users)).Info("Store restored from snapshot")
}

// Len returns the number of known users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func copyRecord(rec *models.UserRecord) *models.UserRecord {
	out := *rec
	out.Context = make([]models.Message, len(rec.Context))
	for i, msg := range rec.Context {
		out.Context[i] = copyMessage(msg)
	}
	if rec.SubscriptionEndDate != nil {
		d := *rec.SubscriptionEndDate
		out.SubscriptionEndDate = &d
	}
	return &out
}

func copyMessage(msg models.Message) models.Message {
	out := msg
	out.Content = make([]models.ContentPart, len(msg.Content))
	for i, part := range msg.Content {
		cp := part
		if part.ImageURL != nil {
			img := *part.ImageURL
			cp.ImageURL = &img
		}
		if part.File != nil {
			f := *part.File
			cp.File = &f
		}
		out.Content[i] = cp
	}
	return out
}
