package entitlement

import "time"

// Plans accepted from checkout metadata.
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Record is the per-user subscription state kept in the entitlement store.
// Nullable fields are pointers so the wire shape distinguishes "unset" from
// empty. Records are never deleted, only deactivated in place.
type Record struct {
	IsPro                bool    `json:"isPro"`
	Plan                 *string `json:"plan"`
	StripeCustomerID     *string `json:"stripeCustomerId"`
	StripeSubscriptionID *string `json:"stripeSubscriptionId"`
	ActivatedAt          string  `json:"activatedAt,omitempty"`
	ExpiresAt            *string `json:"expiresAt"`
	CancelAtPeriodEnd    *bool   `json:"cancelAtPeriodEnd,omitempty"`
}

// FreeRecord is what an unknown user looks like: not subscribed, which is a
// normal state and never an error.
func FreeRecord() Record {
	return Record{}
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func strPtr(s string) *string { return &s }
