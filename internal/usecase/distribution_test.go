package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/settings"
)

type distFixture struct {
	svc      *DistributionService
	locker   *fakeLocker
	orders   *fakeOrderRepo
	offers   *fakeOfferRepo
	masters  *fakeMasterRepo
	notifier *fakeNotifier
	staff    *fakeStaff
	tun      domain.Tunables
	now      time.Time
}

func newDistFixture(t *testing.T) *distFixture {
	t.Helper()
	logger := testLogger()

	f := &distFixture{
		locker:   &fakeLocker{},
		orders:   newFakeOrderRepo(),
		offers:   &fakeOfferRepo{},
		masters:  &fakeMasterRepo{byCity: map[string][]domain.Master{}},
		notifier: &fakeNotifier{},
		staff: &fakeStaff{
			all: []domain.Recipient{
				{ChatID: 100, Role: "logist"},
				{ChatID: 900, Role: "admin"},
			},
			admins: []domain.Recipient{{ChatID: 900, Role: "admin"}},
		},
		tun: domain.DefaultTunables(),
		now: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	// Mirror the SQL-side escalation reset on offer insert.
	f.offers.onCreate = func(o *domain.Offer) { f.orders.resetEscalation(o.OrderID) }

	skills := domain.SkillMap{"boiler": "boiler_repair"}
	matcher := NewMatcher(f.masters, f.offers, skills, logger)
	escalation := NewEscalationService(f.orders, f.staff, f.notifier, logger)
	cache := settings.NewCache(&fakeSettingsRepo{tun: f.tun}, logger)

	f.svc = NewDistributionService(
		f.locker, cache, f.orders, f.offers, matcher, escalation, f.notifier, logger)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func searchingOrder(id int64) domain.Order {
	return domain.Order{
		ID:        id,
		City:      "kaliningrad",
		District:  "center",
		Category:  "boiler",
		Type:      domain.OrderTypeNormal,
		Status:    domain.OrderStatusSearching,
		CreatedAt: time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC),
	}
}

func eligibleMaster(id int64) domain.Master {
	return domain.Master{
		ID:        id,
		ChatID:    id * 10,
		City:      "kaliningrad",
		Districts: []string{"center"},
		Skills:    []string{"boiler_repair"},
		Shift:     domain.ShiftOn,
		Verified:  true,
		Active:    true,
		Rating:    4.5,
	}
}

func TestRunTick_BroadcastsFirstRound(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7)}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	offers := f.offers.byOrder(1)
	if len(offers) != 1 {
		t.Fatalf("want exactly 1 offer, got %d", len(offers))
	}
	o := offers[0]
	if o.Round != 1 || o.State != domain.OfferSent || o.MasterID != 7 {
		t.Errorf("unexpected offer: round=%d state=%s master=%d", o.Round, o.State, o.MasterID)
	}
	if !o.ExpiresAt.Equal(f.now.Add(f.tun.SLA)) {
		t.Errorf("expires_at = %v, want %v", o.ExpiresAt, f.now.Add(f.tun.SLA))
	}

	notes := f.notifier.byEvent(domain.EventOfferNew)
	if len(notes) != 1 || notes[0].To.ChatID != 70 {
		t.Errorf("want one offer.new to chat 70, got %+v", notes)
	}
	if f.locker.unlocks != 1 {
		t.Errorf("tick lock not released, unlocks=%d", f.locker.unlocks)
	}
}

func TestRunTick_SkipsWhenLockHeld(t *testing.T) {
	f := newDistFixture(t)
	f.locker.held = true
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7)}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("concurrent tick must be a no-op skip, got %v", err)
	}
	if len(f.offers.offers) != 0 {
		t.Errorf("lock held elsewhere but offers were created: %d", len(f.offers.offers))
	}
}

func TestRunTick_PendingOfferDefers(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7), eligibleMaster(8)}
	f.offers.offers = []*domain.Offer{{
		ID: "o-1", OrderID: 1, MasterID: 7, Round: 1,
		State: domain.OfferSent, SentAt: f.now.Add(-time.Minute), ExpiresAt: f.now.Add(time.Minute),
	}}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if len(f.offers.offers) != 1 {
		t.Errorf("pending offer must defer the order, got %d offers", len(f.offers.offers))
	}
}

func TestRunTick_ExpiredOfferStartsNextRound(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7), eligibleMaster(8)}
	f.offers.offers = []*domain.Offer{{
		ID: "o-1", OrderID: 1, MasterID: 7, Round: 1,
		State: domain.OfferSent, SentAt: f.now.Add(-10 * time.Minute), ExpiresAt: f.now.Add(-5 * time.Minute),
	}}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	offers := f.offers.byOrder(1)
	if len(offers) != 2 {
		t.Fatalf("want expired + new offer, got %d", len(offers))
	}
	if offers[0].State != domain.OfferExpired {
		t.Errorf("round 1 offer state = %s, want EXPIRED", offers[0].State)
	}
	if offers[1].Round != 2 || offers[1].MasterID != 8 {
		t.Errorf("round 2 offer went to master %d round %d, want master 8 round 2",
			offers[1].MasterID, offers[1].Round)
	}
}

// An offer whose deadline is exactly now is expired.
func TestRunTick_ExpiryBoundaryIsInclusive(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.offers.offers = []*domain.Offer{{
		ID: "o-1", OrderID: 1, MasterID: 7, Round: 1,
		State: domain.OfferSent, SentAt: f.now.Add(-5 * time.Minute), ExpiresAt: f.now,
	}}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if got := f.offers.offers[0].State; got != domain.OfferExpired {
		t.Errorf("offer expiring exactly now: state = %s, want EXPIRED", got)
	}
}

// Running the reaper twice back to back changes nothing the second time.
func TestExpireOverdue_Idempotent(t *testing.T) {
	f := newDistFixture(t)
	f.offers.offers = []*domain.Offer{{
		ID: "o-1", OrderID: 1, MasterID: 7, Round: 1,
		State: domain.OfferSent, SentAt: f.now.Add(-10 * time.Minute), ExpiresAt: f.now.Add(-time.Minute),
	}}

	ctx := context.Background()
	first, err := f.offers.ExpireOverdue(ctx, 1, f.now, f.tun.SLA)
	if err != nil || first != 1 {
		t.Fatalf("first sweep: n=%d err=%v, want 1", first, err)
	}
	second, err := f.offers.ExpireOverdue(ctx, 1, f.now, f.tun.SLA)
	if err != nil || second != 0 {
		t.Errorf("second sweep: n=%d err=%v, want 0", second, err)
	}
}

func TestRunTick_NoEligibleOrdersIsNoop(t *testing.T) {
	f := newDistFixture(t)

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if len(f.offers.offers) != 0 || len(f.notifier.sent) != 0 {
		t.Errorf("empty queue must be a no-op")
	}
}

func TestRunTick_NoCandidatesEscalatesOnce(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)} // no masters anywhere

	ctx := context.Background()
	if err := f.svc.RunTick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	if _, ok := f.orders.escalatedLogist[1]; !ok {
		t.Fatal("escalated_logist_at not set")
	}
	if _, ok := f.orders.notifiedLogist[1]; !ok {
		t.Fatal("notified_logist_at not set")
	}
	if got := len(f.notifier.byEvent(domain.EventEscalationLogist)); got != 2 {
		t.Fatalf("want logist escalation sent to 2 recipients, got %d", got)
	}

	// The stamps survive into the next tick's snapshot.
	t1 := f.orders.escalatedLogist[1]
	f.orders.queue[0].EscalatedLogistAt = &t1
	n1 := f.orders.notifiedLogist[1]
	f.orders.queue[0].NotifiedLogistAt = &n1

	f.now = f.now.Add(30 * time.Second)
	if err := f.svc.RunTick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if got := len(f.notifier.byEvent(domain.EventEscalationLogist)); got != 2 {
		t.Errorf("escalation notified more than once: %d sends", got)
	}
}

func TestRunTick_RoundsExhaustedEscalates(t *testing.T) {
	f := newDistFixture(t)
	f.orders.queue = []domain.Order{searchingOrder(1)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(9)}
	// MaxRounds already reached, every offer resolved.
	for r := 1; r <= f.tun.MaxRounds; r++ {
		f.offers.offers = append(f.offers.offers, &domain.Offer{
			ID: "o", OrderID: 1, MasterID: int64(100 + r), Round: r,
			State: domain.OfferExpired, SentAt: f.now.Add(-time.Hour), ExpiresAt: f.now.Add(-time.Hour),
		})
	}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if _, ok := f.orders.escalatedLogist[1]; !ok {
		t.Error("rounds exhausted but order not escalated")
	}
	if len(f.offers.byOrder(1)) != f.tun.MaxRounds {
		t.Error("no new offer may be created past the round limit")
	}
}

func TestRunTick_UnmappedCategorySkipsOrder(t *testing.T) {
	f := newDistFixture(t)
	o := searchingOrder(1)
	o.Category = "unknown-category"
	f.orders.queue = []domain.Order{o}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7)}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("validation failure must not abort the tick: %v", err)
	}
	if len(f.offers.offers) != 0 {
		t.Error("unmapped category must not produce offers")
	}
	if _, ok := f.orders.escalatedLogist[1]; ok {
		t.Error("validation skip must not escalate")
	}
}

func TestRunTick_NewOfferResetsEscalation(t *testing.T) {
	f := newDistFixture(t)
	o := searchingOrder(1)
	past := f.now.Add(-time.Hour)
	o.EscalatedLogistAt = &past
	o.NotifiedLogistAt = &past
	f.orders.queue = []domain.Order{o}
	f.orders.escalatedLogist[1] = past
	f.orders.notifiedLogist[1] = past
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7)}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	if len(f.offers.byOrder(1)) != 1 {
		t.Fatal("a master came back, an offer must go out")
	}
	if _, ok := f.orders.escalatedLogist[1]; ok {
		t.Error("new SENT offer must clear escalated_logist_at")
	}
	if _, ok := f.orders.notifiedLogist[1]; ok {
		t.Error("new SENT offer must clear notified_logist_at")
	}
}

// One order's failure must not stop the rest of the batch.
func TestRunTick_OrderFailureIsolated(t *testing.T) {
	f := newDistFixture(t)
	bad := searchingOrder(1)
	bad.City = "" // matcher rejects it with a real error
	f.orders.queue = []domain.Order{bad, searchingOrder(2)}
	f.masters.byCity["kaliningrad"] = []domain.Master{eligibleMaster(7)}

	if err := f.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if len(f.offers.byOrder(2)) != 1 {
		t.Error("healthy order must still get its offer")
	}
}
