package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- locker ---

type fakeLocker struct {
	held    bool // lock owned by "another process"
	failErr error
	locks   int
	unlocks int
}

type fakeLock struct{ l *fakeLocker }

func (f *fakeLock) Unlock(ctx context.Context) error {
	f.l.unlocks++
	return nil
}

func (l *fakeLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	if l.failErr != nil {
		return nil, l.failErr
	}
	if l.held {
		return nil, domain.ErrLockNotAcquired
	}
	l.locks++
	return &fakeLock{l: l}, nil
}

// --- settings ---

type fakeSettingsRepo struct {
	tun   domain.Tunables
	err   error
	loads int
}

func (r *fakeSettingsRepo) Load(ctx context.Context) (domain.Tunables, error) {
	r.loads++
	if r.err != nil {
		return domain.Tunables{}, r.err
	}
	return r.tun, nil
}

func (r *fakeSettingsRepo) Put(ctx context.Context, key, value string) error { return nil }

// --- orders ---

type fakeOrderRepo struct {
	queue    []domain.Order
	queueErr error

	escalatedLogist map[int64]time.Time
	notifiedLogist  map[int64]time.Time
	escalatedAdmin  map[int64]time.Time
	notifiedAdmin   map[int64]time.Time
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		escalatedLogist: make(map[int64]time.Time),
		notifiedLogist:  make(map[int64]time.Time),
		escalatedAdmin:  make(map[int64]time.Time),
		notifiedAdmin:   make(map[int64]time.Time),
	}
}

func (r *fakeOrderRepo) DistributionQueue(ctx context.Context, limit int) ([]domain.Order, error) {
	if r.queueErr != nil {
		return nil, r.queueErr
	}
	if len(r.queue) > limit {
		return r.queue[:limit], nil
	}
	return r.queue, nil
}

func (r *fakeOrderRepo) MarkEscalatedLogist(ctx context.Context, orderID int64, now time.Time) error {
	if _, ok := r.escalatedLogist[orderID]; !ok {
		r.escalatedLogist[orderID] = now
	}
	return nil
}

func (r *fakeOrderRepo) MarkEscalatedAdmin(ctx context.Context, orderID int64, now time.Time) error {
	if _, ok := r.escalatedLogist[orderID]; !ok {
		return nil
	}
	if _, ok := r.escalatedAdmin[orderID]; !ok {
		r.escalatedAdmin[orderID] = now
	}
	return nil
}

func (r *fakeOrderRepo) ClaimLogistNotice(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	if _, ok := r.escalatedLogist[orderID]; !ok {
		return false, nil
	}
	if _, ok := r.notifiedLogist[orderID]; ok {
		return false, nil
	}
	r.notifiedLogist[orderID] = now
	return true, nil
}

func (r *fakeOrderRepo) ClaimAdminNotice(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	if _, ok := r.escalatedAdmin[orderID]; !ok {
		return false, nil
	}
	if _, ok := r.notifiedAdmin[orderID]; ok {
		return false, nil
	}
	r.notifiedAdmin[orderID] = now
	return true, nil
}

func (r *fakeOrderRepo) resetEscalation(orderID int64) {
	delete(r.escalatedLogist, orderID)
	delete(r.notifiedLogist, orderID)
	delete(r.escalatedAdmin, orderID)
	delete(r.notifiedAdmin, orderID)
}

// --- offers ---

type fakeOfferRepo struct {
	offers    []*domain.Offer
	createErr error
	onCreate  func(*domain.Offer) // mirrors the escalation reset done in SQL
}

func (r *fakeOfferRepo) ExpireOverdue(ctx context.Context, orderID int64, now time.Time, sla time.Duration) (int64, error) {
	var n int64
	for _, o := range r.offers {
		if o.OrderID != orderID || !o.State.Pending() {
			continue
		}
		deadline := o.ExpiresAt
		if deadline.IsZero() {
			deadline = o.SentAt.Add(sla)
		}
		if !deadline.After(now) {
			o.State = domain.OfferExpired
			t := now
			o.RespondedAt = &t
			n++
		}
	}
	return n, nil
}

func (r *fakeOfferRepo) CurrentRound(ctx context.Context, orderID int64) (int, error) {
	round := 0
	for _, o := range r.offers {
		if o.OrderID == orderID && o.Round > round {
			round = o.Round
		}
	}
	return round, nil
}

func (r *fakeOfferRepo) HasPending(ctx context.Context, orderID int64) (bool, error) {
	for _, o := range r.offers {
		if o.OrderID == orderID && o.State.Pending() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOfferRepo) OfferedMasters(ctx context.Context, orderID int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	for _, o := range r.offers {
		if o.OrderID == orderID {
			out[o.MasterID] = struct{}{}
		}
	}
	return out, nil
}

func (r *fakeOfferRepo) Create(ctx context.Context, offer *domain.Offer) error {
	if r.createErr != nil {
		return r.createErr
	}
	cp := *offer
	r.offers = append(r.offers, &cp)
	if r.onCreate != nil {
		r.onCreate(&cp)
	}
	return nil
}

func (r *fakeOfferRepo) byOrder(orderID int64) []*domain.Offer {
	var out []*domain.Offer
	for _, o := range r.offers {
		if o.OrderID == orderID {
			out = append(out, o)
		}
	}
	return out
}

// --- masters ---

type fakeMasterRepo struct {
	byCity map[string][]domain.Master
	err    error
}

func (r *fakeMasterRepo) ListByCity(ctx context.Context, city string) ([]domain.Master, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byCity[city], nil
}

// --- staff & notifications ---

type fakeStaff struct {
	all    []domain.Recipient
	admins []domain.Recipient
}

func (s *fakeStaff) EscalationRecipients(ctx context.Context, city string, adminsOnly bool) ([]domain.Recipient, error) {
	if adminsOnly {
		return s.admins, nil
	}
	return s.all, nil
}

type sentNote struct {
	To      domain.Recipient
	Event   string
	Payload any
}

type fakeNotifier struct {
	sent []sentNote
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, to domain.Recipient, event string, payload any) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNote{To: to, Event: event, Payload: payload})
	return nil
}

func (n *fakeNotifier) byEvent(event string) []sentNote {
	var out []sentNote
	for _, s := range n.sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// --- acceptance ---

type fakeAcceptStore struct {
	res        *domain.AcceptResult
	err        error
	declined   bool
	declineErr error
	accepts    int
	declines   int
}

func (s *fakeAcceptStore) AcceptOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (*domain.AcceptResult, error) {
	s.accepts++
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *fakeAcceptStore) DeclineOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (bool, error) {
	s.declines++
	if s.declineErr != nil {
		return false, s.declineErr
	}
	return s.declined, nil
}

type fakeMetricRepo struct {
	facts []*domain.DistributionMetric
	err   error
}

func (r *fakeMetricRepo) Append(ctx context.Context, m *domain.DistributionMetric) error {
	if r.err != nil {
		return r.err
	}
	r.facts = append(r.facts, m)
	return nil
}
