package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Candidate is one eligible master, ranked for the current round.
type Candidate struct {
	Master    domain.Master
	Preferred bool
}

// Matcher maps an order to its ranked eligible masters. It is a pure
// filtered query: no state is written anywhere.
type Matcher struct {
	masters domain.MasterRepository
	offers  domain.OfferRepository
	skills  domain.SkillMap
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewMatcher creates a Matcher over the given snapshots and skill mapping.
func NewMatcher(masters domain.MasterRepository, offers domain.OfferRepository, skills domain.SkillMap, logger *slog.Logger) *Matcher {
	return &Matcher{
		masters: masters,
		offers:  offers,
		skills:  skills,
		logger:  logger.With("component", "matcher"),
		tracer:  otel.Tracer("field-service-matcher"),
	}
}

// EligibleMasters returns the order's eligible masters, best candidate first.
// An empty result is not an error; it is what triggers escalation upstream.
// An order flagged no_district always yields zero candidates: it is routed to
// manual assignment outside this core.
func (m *Matcher) EligibleMasters(ctx context.Context, order *domain.Order, tun domain.Tunables, now time.Time) ([]Candidate, error) {
	ctx, span := m.tracer.Start(ctx, "matcher.EligibleMasters",
		trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	if order.City == "" {
		return nil, fmt.Errorf("order %d has no city", order.ID)
	}
	if order.NoDistrict {
		return nil, nil
	}

	skill, ok := m.skills.For(order.Category)
	if !ok {
		return nil, &domain.UnmappedCategoryError{Category: order.Category}
	}

	all, err := m.masters.ListByCity(ctx, order.City)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list masters for city %s: %w", order.City, err)
	}

	offered, err := m.offers.OfferedMasters(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load offered masters for order %d: %w", order.ID, err)
	}

	var candidates []Candidate
	for _, master := range all {
		if !eligible(&master, order, skill, tun.MaxActiveOrders, now) {
			continue
		}
		if _, dup := offered[master.ID]; dup {
			continue
		}
		candidates = append(candidates, Candidate{
			Master:    master,
			Preferred: order.PreferredMasterID != nil && *order.PreferredMasterID == master.ID,
		})
	}

	rank(candidates)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

// eligible applies the hard filters. Every one of them is required.
func eligible(m *domain.Master, order *domain.Order, skill string, globalLimit int, now time.Time) bool {
	if !m.Verified || !m.Active || m.Blocked {
		return false
	}
	if !m.OnShift(now) {
		return false
	}
	if m.City != order.City {
		return false
	}
	if !m.ServesDistrict(order.District) {
		return false
	}
	if !m.HasSkill(skill) {
		return false
	}
	// Strict less-than: a master at the limit is excluded.
	if m.ActiveOrders >= m.EffectiveLimit(globalLimit) {
		return false
	}
	return true
}

// rank orders candidates deterministically: preferred master first, then
// higher rating, then lower current load, then lower id. Ties resolve
// identically on every call.
func rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Preferred != b.Preferred {
			return a.Preferred
		}
		if a.Master.Rating != b.Master.Rating {
			return a.Master.Rating > b.Master.Rating
		}
		if a.Master.ActiveOrders != b.Master.ActiveOrders {
			return a.Master.ActiveOrders < b.Master.ActiveOrders
		}
		return a.Master.ID < b.Master.ID
	})
}
