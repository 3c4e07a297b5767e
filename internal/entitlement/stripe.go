package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoCustomer is returned when a portal session is requested for a user
// with no stored billing customer.
var ErrNoCustomer = errors.New("no billing customer for user")

// Payments creates hosted checkout and billing-portal sessions. The real
// processor is behind this so the HTTP surface tests against a fake.
type Payments interface {
	CreateCheckoutSession(ctx context.Context, priceID, userID, email string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

// StripeClient talks to the Stripe REST API with form-encoded requests.
type StripeClient struct {
	baseURL    string
	secretKey  string
	successURL string
	cancelURL  string
	returnURL  string
	httpClient *http.Client
}

func NewStripeClient(secretKey, successURL, cancelURL, returnURL string, timeout time.Duration) *StripeClient {
	return &StripeClient{
		baseURL:    "https://api.stripe.com",
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		returnURL:  returnURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateCheckoutSession opens a subscription checkout carrying the user id in
// metadata and as the client reference, so the completion webhook can resolve
// the user either way.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, priceID, userID, email string) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("client_reference_id", userID)
	form.Set("metadata[userId]", userID)
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	if email != "" {
		form.Set("customer_email", email)
	}
	return c.createSession(ctx, "/v1/checkout/sessions", form)
}

// CreatePortalSession opens the billing portal for an existing customer.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", c.returnURL)
	return c.createSession(ctx, "/v1/billing_portal/sessions", form)
}

func (c *StripeClient) createSession(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("stripe status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode stripe response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("stripe response missing url")
	}
	return out.URL, nil
}
