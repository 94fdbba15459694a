package domain

import "time"

// ShiftStatus is the master's self-reported availability.
type ShiftStatus string

const (
	ShiftOn    ShiftStatus = "ON"
	ShiftOff   ShiftStatus = "OFF"
	ShiftBreak ShiftStatus = "BREAK"
)

// Master is the Directory collaborator's snapshot of a technician. The core
// never writes masters; it only filters and ranks them.
type Master struct {
	ID              int64
	ChatID          int64 // messaging identifier for the notification port
	City            string
	Districts       []string
	Skills          []string
	Shift           ShiftStatus
	BreakUntil      *time.Time
	Verified        bool
	Active          bool
	Blocked         bool
	Rating          float64
	ActiveOrders    int  // orders currently in ASSIGNED/EN_ROUTE/WORKING/PAYMENT
	MaxActiveOrders *int // per-master capacity override, nil means global default
}

// OnShift reports whether the master can receive offers right now: shift ON
// and any recorded break already over.
func (m *Master) OnShift(now time.Time) bool {
	if m.Shift != ShiftOn {
		return false
	}
	return m.BreakUntil == nil || !m.BreakUntil.After(now)
}

// ServesDistrict reports whether the master covers the given district.
// An empty district means city-wide search and matches every master.
func (m *Master) ServesDistrict(district string) bool {
	if district == "" {
		return true
	}
	for _, d := range m.Districts {
		if d == district {
			return true
		}
	}
	return false
}

// HasSkill reports whether the master carries the given skill.
func (m *Master) HasSkill(skill string) bool {
	for _, s := range m.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// EffectiveLimit resolves the master's capacity: per-master override, else the
// supplied global default, else the hard fallback.
func (m *Master) EffectiveLimit(globalDefault int) int {
	if m.MaxActiveOrders != nil && *m.MaxActiveOrders > 0 {
		return *m.MaxActiveOrders
	}
	if globalDefault > 0 {
		return globalDefault
	}
	return FallbackMaxActiveOrders
}

// FallbackMaxActiveOrders caps concurrent orders per master when neither a
// per-master override nor a global setting is present.
const FallbackMaxActiveOrders = 5
