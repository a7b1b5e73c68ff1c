package rewardhandler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/rewards"
)

// RewardService is the reward engine as seen by the handler.
type RewardService interface {
	interfaces.RewardService
	Schedule() rewards.Schedule
}

// ScheduleResponse lists the reward rate of every event type in whole
// token units.
type ScheduleResponse struct {
	Success bool              `json:"success"`
	Rates   map[string]string `json:"rates"`
}

// Handler serves reward issuance and history for the authenticated user.
type Handler struct {
	rewards RewardService
	log     *slog.Logger
}

func NewHandler(rewards RewardService, log *slog.Logger) *Handler {
	return &Handler{
		rewards: rewards,
		log:     log,
	}
}

// RegisterRoutes configures r with the reward endpoints:
//   - POST /rewards - issue a reward for an event
//   - GET /rewards?limit=N - reward history, newest first
//   - GET /rewards/schedule - configured rates
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/rewards", h.HandleReward)
	r.Get("/rewards", h.HandleHistory)
	r.Get("/rewards/schedule", h.HandleSchedule)
}

// HandleReward transfers the reward for one event to the caller's wallet.
// The request amount multiplies the event's rate and defaults to 1.
//
// Request: JSON-encoded api.RewardRequest
//
// Status codes:
//   - 200 OK: tokens transferred
//   - 400 Bad Request: unknown event type or amount out of range
//   - 402 Payment Required: the treasury cannot cover the reward
//   - 404 Not Found: the caller has no active wallet
func (h *Handler) HandleReward(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	var req api.RewardRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if req.EventType == "" {
		api.WriteError(w, h.log, interfaces.NewError(interfaces.KindInvalidArgument, "eventType is required", nil))
		return
	}
	multiplier := int64(1)
	if req.Amount != nil {
		multiplier = *req.Amount
	}

	entry, err := h.rewards.Reward(r.Context(), subject, req.EventType, multiplier, req.Metadata)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.RewardResponse{Success: true, Reward: api.NewReward(entry)})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.WriteError(w, h.log, interfaces.NewError(interfaces.KindInvalidArgument, "limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	entries, err := h.rewards.History(r.Context(), subject.UserID, limit)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	out := make([]*api.Reward, 0, len(entries))
	for _, entry := range entries {
		out = append(out, api.NewReward(entry))
	}
	api.WriteJSON(w, http.StatusOK, api.RewardHistoryResponse{Success: true, Rewards: out})
}

func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := h.rewards.Schedule()
	rates := make(map[string]string, len(schedule))
	for event, rate := range schedule {
		rates[event] = rate.String()
	}
	api.WriteJSON(w, http.StatusOK, ScheduleResponse{Success: true, Rates: rates})
}
