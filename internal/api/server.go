package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"candlerush/internal/config"
	"candlerush/internal/entitlement"
)

const maxWebhookBody = 1 << 20

// Server hosts the entitlement HTTP surface: checkout/portal session
// creation, the status read-through, and the webhook sink.
type Server struct {
	cfg        config.APIConfig
	log        *slog.Logger
	store      entitlement.Store
	reconciler *entitlement.Reconciler
	payments   entitlement.Payments
	now        func() time.Time
	mux        *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, store entitlement.Store, reconciler *entitlement.Reconciler, payments entitlement.Payments) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		log:        logger,
		store:      store,
		reconciler: reconciler,
		payments:   payments,
		now:        time.Now,
		mux:        chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/checkout", s.handleCheckout)
	r.Post("/portal", s.handlePortal)
	r.Get("/status", s.handleStatus)
	r.Post("/webhook", s.handleWebhook)
}

// corsMiddleware answers preflights with an empty 204 and mirrors allow-listed
// origins on every response.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PriceID string `json:"priceId"`
		UserID  string `json:"userId"`
		Email   string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.PriceID) == "" || strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "priceId and userId are required")
		return
	}
	url, err := s.payments.CreateCheckoutSession(r.Context(), in.PriceID, in.UserID, in.Email)
	if err != nil {
		s.log.Error("checkout session failed", "user", in.UserID, "err", err)
		writeError(w, http.StatusBadGateway, "checkout session failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	rec, err := s.store.Get(r.Context(), in.UserID)
	if err != nil {
		s.log.Error("entitlement read failed", "user", in.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "entitlement read failed")
		return
	}
	if rec == nil || rec.StripeCustomerID == nil {
		writeError(w, http.StatusNotFound, entitlement.ErrNoCustomer.Error())
		return
	}
	url, err := s.payments.CreatePortalSession(r.Context(), *rec.StripeCustomerID)
	if err != nil {
		s.log.Error("portal session failed", "user", in.UserID, "err", err)
		writeError(w, http.StatusBadGateway, "portal session failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	rec, err := s.reconciler.Status(r.Context(), userID)
	if err != nil {
		s.log.Error("status read failed", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "status read failed")
		return
	}
	// Billing internals stay server-side; clients only need the tier.
	writeJSON(w, http.StatusOK, map[string]any{
		"isPro":     rec.IsPro,
		"plan":      rec.Plan,
		"expiresAt": rec.ExpiresAt,
	})
}

// handleWebhook authenticates the delivery, then acknowledges regardless of
// the processing outcome; only a signature failure or an unparseable body is
// a client error. Anything else would invite a redelivery storm for events
// that will never apply cleanly.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if err := entitlement.VerifySignature(s.cfg.StripeWebhookSecret, sig, body, s.now()); err != nil {
		s.log.Warn("webhook rejected", "err", err)
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}
	if err := s.reconciler.HandleEvent(r.Context(), body); err != nil {
		writeError(w, http.StatusBadRequest, "unparseable event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
