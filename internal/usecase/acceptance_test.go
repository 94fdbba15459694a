package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
)

func acceptFixture(t *testing.T, store *fakeAcceptStore) (*AcceptanceService, *fakeMetricRepo) {
	t.Helper()
	facts := &fakeMetricRepo{}
	svc := NewAcceptanceService(store, facts, testLogger())
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }
	return svc, facts
}

func TestAcceptOffer_RecordsAssignmentFact(t *testing.T) {
	created := time.Date(2025, 3, 14, 11, 30, 0, 0, time.UTC)
	store := &fakeAcceptStore{res: &domain.AcceptResult{
		OrderID:         42,
		MasterID:        7,
		Round:           2,
		OffersTotal:     3,
		Preferred:       true,
		EscalatedLogist: true,
		OrderCreatedAt:  created,
		SiblingsCancel:  1,
	}}
	svc, facts := acceptFixture(t, store)

	res, err := svc.AcceptOffer(context.Background(), "offer-1", 7)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if res.OrderID != 42 {
		t.Errorf("OrderID = %d", res.OrderID)
	}

	if len(facts.facts) != 1 {
		t.Fatalf("want one assignment fact, got %d", len(facts.facts))
	}
	fact := facts.facts[0]
	if fact.OrderID != 42 || fact.MasterID != 7 || fact.Round != 2 {
		t.Errorf("fact identity wrong: %+v", fact)
	}
	if fact.TimeToAssign != 30*time.Minute {
		t.Errorf("TimeToAssign = %v, want 30m", fact.TimeToAssign)
	}
	if !fact.Preferred || !fact.EscalatedLogist || fact.EscalatedAdmin {
		t.Errorf("fact flags wrong: %+v", fact)
	}
}

func TestAcceptOffer_ContentionPassesThroughNoFact(t *testing.T) {
	for _, sentinel := range []error{
		domain.ErrOfferUnavailable,
		domain.ErrOrderTaken,
		domain.ErrOfferExpired,
		domain.ErrOfferDeclined,
		domain.ErrOfferAlreadyAccepted,
	} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			store := &fakeAcceptStore{err: sentinel}
			svc, facts := acceptFixture(t, store)

			_, err := svc.AcceptOffer(context.Background(), "offer-1", 7)
			if !errors.Is(err, sentinel) {
				t.Fatalf("err = %v, want %v", err, sentinel)
			}
			if len(facts.facts) != 0 {
				t.Error("a refused accept must not record a fact")
			}
		})
	}
}

func TestAcceptOffer_FactFailureDoesNotFailAccept(t *testing.T) {
	store := &fakeAcceptStore{res: &domain.AcceptResult{OrderID: 1, MasterID: 7, Round: 1,
		OrderCreatedAt: time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC)}}
	svc, facts := acceptFixture(t, store)
	facts.err = errors.New("metrics table gone")

	if _, err := svc.AcceptOffer(context.Background(), "offer-1", 7); err != nil {
		t.Fatalf("the assignment fact is best-effort: %v", err)
	}
}

func TestDeclineOffer(t *testing.T) {
	t.Run("pending offer declines", func(t *testing.T) {
		svc, _ := acceptFixture(t, &fakeAcceptStore{declined: true})
		ok, err := svc.DeclineOffer(context.Background(), "offer-1", 7)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v, want true,nil", ok, err)
		}
	})

	t.Run("resolved offer is a no-op", func(t *testing.T) {
		svc, _ := acceptFixture(t, &fakeAcceptStore{declined: false})
		ok, err := svc.DeclineOffer(context.Background(), "offer-1", 7)
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v, want false,nil", ok, err)
		}
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		svc, _ := acceptFixture(t, &fakeAcceptStore{declineErr: errors.New("db down")})
		if _, err := svc.DeclineOffer(context.Background(), "offer-1", 7); err == nil {
			t.Fatal("want error")
		}
	})
}
