// Package quota decides whether a user may spend another message today.
// It is checked before any model call so a blocked turn costs nothing.
package quota

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/config"
	"github.com/ryadomlab/ryadom/internal/store"
)

type Checker struct {
	store  *store.Store
	limits config.LimitsConfig
	log    zerolog.Logger
}

func NewChecker(s *store.Store, limits config.LimitsConfig, logger zerolog.Logger) *Checker {
	return &Checker{
		store:  s,
		limits: limits,
		log:    logger.With().Str("component", "quota").Logger(),
	}
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
	Plan    string
}

// PlanLimit maps a subscription to its daily message allowance. A
// missing, inactive or expired subscription falls back to the free
// tier.
func (c *Checker) PlanLimit(sub *store.Subscription, now time.Time) (string, int) {
	if sub == nil || sub.Status != store.SubActive {
		return store.PlanFree, c.limits.FreeMessagesPerDay
	}
	if sub.Plan != store.PlanFree && sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
		return store.PlanFree, c.limits.FreeMessagesPerDay
	}
	switch sub.Plan {
	case store.PlanBasic:
		return store.PlanBasic, c.limits.BasicMessagesPerDay
	case store.PlanPremium:
		return store.PlanPremium, c.limits.PremiumMessagesPerDay
	default:
		return store.PlanFree, c.limits.FreeMessagesPerDay
	}
}

// Check counts the user's own messages for the current UTC day against
// the plan limit. At the limit the turn is blocked.
func (c *Checker) Check(userID int64, now time.Time) (*Decision, error) {
	sub, err := c.store.SubscriptionByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("quota subscription: %w", err)
	}
	plan, limit := c.PlanLimit(sub, now)

	used, err := c.store.CountUserMessagesToday(userID, now)
	if err != nil {
		return nil, fmt.Errorf("quota count: %w", err)
	}

	d := &Decision{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
		Plan:    plan,
	}
	if !d.Allowed {
		c.log.Info().Int64("user_id", userID).Str("plan", plan).
			Int("used", used).Int("limit", limit).Msg("daily limit reached")
	}
	return d, nil
}
