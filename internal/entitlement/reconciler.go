package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Webhook event types handled by the reconciler.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is the processor's envelope. Only the envelope must parse; object
// fields are decoded per event type.
type Event struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutObject struct {
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd *bool  `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

// Reconciler converges per-user subscription records from at-least-once,
// possibly out-of-order webhook deliveries. Event application is serialized
// by an internal mutex, closing the read-modify-write window the plain
// get/put store contract leaves open for concurrent deliveries.
type Reconciler struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, log: log, now: time.Now}
}

// HandleEvent applies one authenticated webhook body. A body that does not
// parse as an event envelope is the only hard failure; every other outcome,
// including an unmatched customer id or a store error, is logged and
// acknowledged so the processor does not redeliver a structurally valid
// event forever.
func (r *Reconciler) HandleEvent(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch ev.Type {
	case EventCheckoutCompleted:
		err = r.applyCheckout(ctx, ev.Data.Object)
	case EventSubscriptionUpdated:
		err = r.applyUpdate(ctx, ev.Data.Object)
	case EventSubscriptionDeleted:
		err = r.applyDelete(ctx, ev.Data.Object)
	default:
		r.log.Debug("ignoring webhook event", "type", ev.Type)
	}
	if err != nil {
		// Acknowledged anyway: redelivery would hit the same condition.
		r.log.Error("webhook processing failed", "type", ev.Type, "err", err)
	}
	return nil
}

func (r *Reconciler) applyCheckout(ctx context.Context, raw json.RawMessage) error {
	var obj checkoutObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	userID := obj.Metadata["userId"]
	if userID == "" {
		userID = obj.ClientReferenceID
	}
	if userID == "" {
		r.log.Warn("checkout completed without a user id", "customer", obj.Customer)
		return nil
	}

	rec := Record{
		IsPro:       true,
		ActivatedAt: isoTime(r.now()),
	}
	if plan := obj.Metadata["plan"]; plan != "" {
		rec.Plan = strPtr(plan)
	}
	if obj.Customer != "" {
		rec.StripeCustomerID = strPtr(obj.Customer)
	}
	if obj.Subscription != "" {
		rec.StripeSubscriptionID = strPtr(obj.Subscription)
	}
	if err := r.store.Put(ctx, userID, rec); err != nil {
		return fmt.Errorf("write record for %s: %w", userID, err)
	}
	r.log.Info("subscription activated", "user", userID, "plan", obj.Metadata["plan"])
	return nil
}

func (r *Reconciler) applyUpdate(ctx context.Context, raw json.RawMessage) error {
	var obj subscriptionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	return r.scanByCustomer(ctx, obj.Customer, func(rec *Record) {
		if obj.CancelAtPeriodEnd != nil {
			rec.CancelAtPeriodEnd = obj.CancelAtPeriodEnd
		}
		if obj.CurrentPeriodEnd > 0 {
			rec.ExpiresAt = strPtr(isoTime(time.Unix(obj.CurrentPeriodEnd, 0)))
		}
		if obj.Status == "active" {
			rec.IsPro = true
		}
	})
}

func (r *Reconciler) applyDelete(ctx context.Context, raw json.RawMessage) error {
	var obj subscriptionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	return r.scanByCustomer(ctx, obj.Customer, func(rec *Record) {
		rec.IsPro = false
		rec.Plan = nil
		rec.StripeSubscriptionID = nil
		// Customer id stays: a later checkout produces a fresh mapping.
	})
}

// scanByCustomer walks every key looking for the record carrying the
// processor's customer id; the store is keyed by user id, so this is a linear
// scan. Fine at small user counts, and the pgstore keeps an index ready for
// when it is not.
func (r *Reconciler) scanByCustomer(ctx context.Context, customerID string, mutate func(*Record)) error {
	if customerID == "" {
		r.log.Warn("subscription event without customer id")
		return nil
	}
	keys, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	for _, userID := range keys {
		rec, err := r.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("read record %s: %w", userID, err)
		}
		if rec == nil || rec.StripeCustomerID == nil || *rec.StripeCustomerID != customerID {
			continue
		}
		mutate(rec)
		if err := r.store.Put(ctx, userID, *rec); err != nil {
			return fmt.Errorf("write record %s: %w", userID, err)
		}
		r.log.Info("subscription record updated", "user", userID, "customer", customerID)
		return nil
	}
	r.log.Warn("no record matches customer", "customer", customerID)
	return nil
}

// Status reads through to the store, returning the free-tier record when the
// user is unknown. "Not subscribed" is a normal state, never an error.
func (r *Reconciler) Status(ctx context.Context, userID string) (Record, error) {
	rec, err := r.store.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return FreeRecord(), nil
	}
	return *rec, nil
}
