package store

import (
	"time"

	"github.com/openrouter-tgbot-go/internal/models"
)

// rollCounters applies the lazy quota resets: daily drops to zero on the
// first access after a UTC calendar day boundary, monthly on a UTC month or
// year change. Pure function of (counts, now); callers persist the result.
func rollCounters(c models.MessageCounts, now time.Time) models.MessageCounts {
	now = now.UTC()

	if !sameUTCDay(c.LastDailyReset, now) {
		c.Daily = 0
		c.LastDailyReset = now
	}
	if !sameUTCMonth(c.LastMonthlyReset, now) {
		c.Monthly = 0
		c.LastMonthlyReset = now
	}
	return c
}

func sameUTCDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameUTCMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
