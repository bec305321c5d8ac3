package store

import (
	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/models"
)

// TierPolicy is the quota table and model menu for one tier.
type TierPolicy struct {
	DailyLimit   int
	MonthlyLimit int
	Models       []string
}

// Policy is the static configuration the store enforces. It is read-only
// input; per-test overrides come from constructing a different Policy.
type Policy struct {
	DefaultModel string
	WindowSize   int
	Tiers        map[models.Tier]TierPolicy
}

// PolicyFromConfig builds the store policy from the loaded configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		DefaultModel: cfg.Tiers.DefaultModel,
		WindowSize:   cfg.Context.WindowSize,
		Tiers: map[models.Tier]TierPolicy{
			models.TierLite: {
				DailyLimit:   cfg.Tiers.Lite.DailyLimit,
				MonthlyLimit: cfg.Tiers.Lite.MonthlyLimit,
				Models:       cfg.Tiers.Lite.Models,
			},
			models.TierPlus: {
				DailyLimit:   cfg.Tiers.Plus.DailyLimit,
				MonthlyLimit: cfg.Tiers.Plus.MonthlyLimit,
				Models:       cfg.Tiers.Plus.Models,
			},
		},
	}
}

func (p Policy) tier(t models.Tier) TierPolicy {
	if tp, ok := p.Tiers[t]; ok {
		return tp
	}
	return p.Tiers[models.TierLite]
}

func (p Policy) allows(t models.Tier, modelID string) bool {
	for _, m := range p.tier(t).Models {
		if m == modelID {
			return true
		}
	}
	return false
}
