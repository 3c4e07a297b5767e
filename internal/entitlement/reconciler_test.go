package entitlement

import (
	"context"
	"testing"
)

const checkoutEvent = `{
	"type": "checkout.session.completed",
	"data": {"object": {
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"userId": "u1", "plan": "monthly"}
	}}
}`

func applyEvent(t *testing.T, r *Reconciler, body string) {
	t.Helper()
	if err := r.HandleEvent(context.Background(), []byte(body)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
}

func mustGet(t *testing.T, s Store, userID string) Record {
	t.Helper()
	rec, err := s.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get %s: %v", userID, err)
	}
	if rec == nil {
		t.Fatalf("no record for %s", userID)
	}
	return *rec
}

func TestCheckoutCompletedCreatesRecord(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)

	applyEvent(t, r, checkoutEvent)

	rec := mustGet(t, store, "u1")
	if !rec.IsPro {
		t.Fatal("record not pro after checkout")
	}
	if rec.Plan == nil || *rec.Plan != "monthly" {
		t.Fatalf("plan = %v, want monthly", rec.Plan)
	}
	if rec.StripeCustomerID == nil || *rec.StripeCustomerID != "cus_1" {
		t.Fatalf("customer = %v, want cus_1", rec.StripeCustomerID)
	}
	if rec.StripeSubscriptionID == nil || *rec.StripeSubscriptionID != "sub_1" {
		t.Fatalf("subscription = %v, want sub_1", rec.StripeSubscriptionID)
	}
	if rec.ExpiresAt != nil {
		t.Fatalf("expiresAt = %v, want nil", *rec.ExpiresAt)
	}
	if rec.ActivatedAt == "" {
		t.Fatal("activatedAt not set")
	}
}

func TestCheckoutFallsBackToClientReference(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)

	applyEvent(t, r, `{
		"type": "checkout.session.completed",
		"data": {"object": {"customer": "cus_2", "client_reference_id": "u2"}}
	}`)

	if rec := mustGet(t, store, "u2"); !rec.IsPro {
		t.Fatal("record not pro")
	}
}

func TestCheckoutWithoutUserIsSkipped(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)

	applyEvent(t, r, `{
		"type": "checkout.session.completed",
		"data": {"object": {"customer": "cus_3"}}
	}`)

	keys, _ := store.List(context.Background())
	if len(keys) != 0 {
		t.Fatalf("record created without user id: %v", keys)
	}
}

func TestSubscriptionDeletedDeactivatesByScan(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)
	applyEvent(t, r, checkoutEvent)

	deleted := `{
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`
	applyEvent(t, r, deleted)

	rec := mustGet(t, store, "u1")
	if rec.IsPro {
		t.Fatal("still pro after deletion")
	}
	if rec.Plan != nil || rec.StripeSubscriptionID != nil {
		t.Fatalf("plan/subscription not cleared: %+v", rec)
	}
	if rec.StripeCustomerID == nil || *rec.StripeCustomerID != "cus_1" {
		t.Fatal("customer id should survive deactivation")
	}

	// Replay converges to the same record.
	applyEvent(t, r, deleted)
	again := mustGet(t, store, "u1")
	if again.IsPro || again.Plan != nil || again.StripeSubscriptionID != nil {
		t.Fatalf("replay diverged: %+v", again)
	}
}

func TestSubscriptionUpdatedMerges(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)
	applyEvent(t, r, checkoutEvent)

	updated := `{
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_end": 1767225600
		}}
	}`
	applyEvent(t, r, updated)

	rec := mustGet(t, store, "u1")
	if !rec.IsPro {
		t.Fatal("active status should force pro")
	}
	if rec.CancelAtPeriodEnd == nil || !*rec.CancelAtPeriodEnd {
		t.Fatal("cancelAtPeriodEnd not merged")
	}
	if rec.ExpiresAt == nil || *rec.ExpiresAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("expiresAt = %v, want 2026-01-01T00:00:00Z", rec.ExpiresAt)
	}
	if rec.Plan == nil || *rec.Plan != "monthly" {
		t.Fatal("untouched fields must survive a partial update")
	}

	// Replay idempotence.
	applyEvent(t, r, updated)
	again := mustGet(t, store, "u1")
	if *again.ExpiresAt != *rec.ExpiresAt || again.IsPro != rec.IsPro {
		t.Fatalf("replay diverged: %+v", again)
	}
}

func TestUpdateRecoversAfterFailedPayment(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)
	applyEvent(t, r, checkoutEvent)

	// Deactivated out of band, then a payment retry succeeds.
	applyEvent(t, r, `{
		"type": "customer.subscription.deleted",
		"data": {"object": {"customer": "cus_1"}}
	}`)
	applyEvent(t, r, `{
		"type": "customer.subscription.updated",
		"data": {"object": {"customer": "cus_1", "status": "active"}}
	}`)

	if rec := mustGet(t, store, "u1"); !rec.IsPro {
		t.Fatal("active update should restore pro")
	}
}

func TestUnmatchedCustomerIsAcknowledged(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)

	if err := r.HandleEvent(context.Background(), []byte(`{
		"type": "customer.subscription.deleted",
		"data": {"object": {"customer": "cus_unknown"}}
	}`)); err != nil {
		t.Fatalf("unmatched customer must not error: %v", err)
	}
}

func TestGrossParseFailureErrors(t *testing.T) {
	r := NewReconciler(NewMemoryStore(), nil)
	if err := r.HandleEvent(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected error on unparseable body")
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store, nil)
	applyEvent(t, r, `{"type": "invoice.paid", "data": {"object": {}}}`)
	keys, _ := store.List(context.Background())
	if len(keys) != 0 {
		t.Fatal("unknown event mutated the store")
	}
}

func TestStatusDefaultsForUnknownUser(t *testing.T) {
	r := NewReconciler(NewMemoryStore(), nil)
	rec, err := r.Status(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.IsPro || rec.Plan != nil || rec.ExpiresAt != nil {
		t.Fatalf("unknown user should be the free record: %+v", rec)
	}
}
