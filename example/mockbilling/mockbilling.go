// Package mockbilling is an in-memory billing backend for trying billpoll
// end to end.
//
// Purchases are accepted immediately but only become visible on reads after
// a configurable delay, the way a real backend learns about a hosted
// checkout from a payment provider webhook.
package mockbilling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/billpoll/billing"
)

// DefaultDelay is how long a purchase stays invisible to reads.
const DefaultDelay = 5 * time.Second

// Server is the mock backend. Configure fields before serving.
type Server struct {
	// Delay before purchases appear on reads. Defaults to DefaultDelay.
	Delay time.Duration

	// DeclineAbove rejects slot purchases of more than this many slots with
	// 402 Payment Required. Zero accepts every quantity.
	DeclineAbove int

	// Now is the time source. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger

	mu    sync.Mutex
	subs  []pending[billing.TeamSubscription]
	slots []pending[billing.Slot]
}

type pending[T any] struct {
	item      T
	visibleAt time.Time
}

// Handler returns the backend routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/team-subscriptions", s.handleTeamSubscriptions)
	mux.HandleFunc("GET /api/team-slots", s.handleTeamSlots)
	mux.HandleFunc("POST /api/team-subscriptions/{id}/slots", s.handleAddSlots)
	mux.HandleFunc("POST /api/checkout", s.handleCheckout)
	mux.HandleFunc("GET /api/payment-ui", s.handlePaymentUI)
	mux.HandleFunc("GET /api/account-statement", s.handleAccountStatement)
	return mux
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) delay() time.Duration {
	if s.Delay > 0 {
		return s.Delay
	}
	return DefaultDelay
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func visible[T any](items []pending[T], now time.Time) []T {
	out := make([]T, 0, len(items))
	for _, p := range items {
		if !now.Before(p.visibleAt) {
			out = append(out, p.item)
		}
	}
	return out
}

func (s *Server) handleTeamSubscriptions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	subs := visible(s.subs, s.now())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleTeamSlots(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	slots := visible(s.slots, s.now())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, slots)
}

type quantityRequest struct {
	PlanID   string `json:"plan_id"`
	Quantity int    `json:"quantity"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, ok := billing.PlanByID(req.PlanID)
	if !ok || !plan.Team {
		writeMessage(w, http.StatusBadRequest, "unknown team plan "+strconv.Quote(req.PlanID))
		return
	}
	if _, err := billing.TeamQuote(plan, req.Quantity); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	visibleAt := now.Add(s.delay())
	ts := billing.TeamSubscription{
		ID:        uuid.NewString(),
		UserID:    "mock-user",
		PlanID:    plan.ID,
		Quantity:  req.Quantity,
		StartDate: now,
	}

	s.mu.Lock()
	s.subs = append(s.subs, pending[billing.TeamSubscription]{item: ts, visibleAt: visibleAt})
	s.addSlotsLocked(ts.ID, req.Quantity, visibleAt)
	s.mu.Unlock()

	s.logger().Info("checkout completed", "plan_id", plan.ID, "quantity", req.Quantity, "visible_at", visibleAt)

	writeJSON(w, http.StatusOK, billing.HostedPage{
		ID:    ts.ID,
		URL:   "https://checkout.example.com/pages/" + ts.ID,
		State: "succeeded",
	})
}

func (s *Server) handleAddSlots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		writeMessage(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}
	if s.DeclineAbove > 0 && req.Quantity > s.DeclineAbove {
		writeMessage(w, http.StatusPaymentRequired, "card declined")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, p := range s.subs {
		if p.item.ID == id {
			found = true
			break
		}
	}
	if !found {
		writeMessage(w, http.StatusNotFound, "team subscription not found")
		return
	}

	s.addSlotsLocked(id, req.Quantity, s.now().Add(s.delay()))
	s.logger().Info("slots added", "team_subscription_id", id, "quantity", req.Quantity)
	w.WriteHeader(http.StatusNoContent)
}

// addSlotsLocked appends quantity free slots; s.mu must be held.
func (s *Server) addSlotsLocked(tsID string, quantity int, visibleAt time.Time) {
	for i := 0; i < quantity; i++ {
		s.slots = append(s.slots, pending[billing.Slot]{
			item: billing.Slot{
				ID:                 uuid.NewString(),
				TeamSubscriptionID: tsID,
				State:              billing.SlotFree,
			},
			visibleAt: visibleAt,
		})
	}
}

func (s *Server) handlePaymentUI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"show": true})
}

func (s *Server) handleAccountStatement(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, billing.AccountStatement{
		UserID:    "mock-user",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now,
		Subscriptions: []billing.Subscription{
			{UID: "sub-free", UserID: "mock-user", PlanID: "free", StartDate: now.AddDate(-1, 0, 0)},
		},
		RemainingHours: 42,
	})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
