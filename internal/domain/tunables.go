package domain

import "time"

// Tunables are the runtime knobs of the distribution core. They live in the
// settings key-value store and are read through a cached provider; staleness
// of up to the cache TTL is an accepted trade-off.
type Tunables struct {
	TickInterval         time.Duration // scheduler period
	SLA                  time.Duration // offer time-to-live
	MaxRounds            int           // broadcast rounds before the order is considered stuck
	TopLogN              int           // how many queue entries to log per tick
	EscalateToAdminAfter time.Duration // logist escalation age before admins are pulled in
	MaxActiveOrders      int           // global per-master capacity default
}

// DefaultTunables returns the values used when a setting key is absent.
func DefaultTunables() Tunables {
	return Tunables{
		TickInterval:         15 * time.Second,
		SLA:                  5 * time.Minute,
		MaxRounds:            3,
		TopLogN:              10,
		EscalateToAdminAfter: 60 * time.Minute,
		MaxActiveOrders:      FallbackMaxActiveOrders,
	}
}

// SkillMap is the static category -> required-skill mapping consumed by the
// eligibility matcher.
type SkillMap map[string]string

// For resolves the skill required by an order category.
func (m SkillMap) For(category string) (string, bool) {
	skill, ok := m[category]
	return skill, ok
}
