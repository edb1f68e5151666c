package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reading-progression/internal/config"
	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/service"
	"github.com/reading-progression/internal/websocket"
)

// Handler provides HTTP handlers for the reading progression API
type Handler struct {
	service *service.ProgressionService
	hub     *websocket.Hub
	config  *config.ProgressionConfig
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc *service.ProgressionService, hub *websocket.Hub, cfg *config.ProgressionConfig, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Activity submission
		r.Post("/logs", h.SubmitReadingLog)
		r.Post("/reviews", h.SubmitReview)
		r.Post("/books/{bookID}/complete", h.CompleteBook)

		// Per-user derived state
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/progress", h.GetProgress)
			r.Get("/badges", h.GetBadges)
		})

		// Leaderboards
		r.Get("/rankings/{period}", h.GetRankings)
		r.Get("/rankings/{period}/users/{userID}", h.GetUserRanking)
		r.Get("/champions/weekly", h.GetWeeklyChampions)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// limitParam reads the limit query parameter, clamped to the configured
// maximum, falling back to the configured default
func (h *Handler) limitParam(r *http.Request) int {
	limit := h.config.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > h.config.MaxLimit {
		limit = h.config.MaxLimit
	}
	return limit
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// SubmitReadingLog handles reading-log submission
func (h *Handler) SubmitReadingLog(w http.ResponseWriter, r *http.Request) {
	var submission domain.ReadingLogSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.SubmitReadingLog(r.Context(), submission)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSubmission) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to submit reading log", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, result)
}

// SubmitReview handles review submission
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var submission domain.ReviewSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.SubmitReview(r.Context(), submission)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSubmission) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to submit review", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, result)
}

// CompleteBookRequest carries the acting user for a completion
type CompleteBookRequest struct {
	UserID string `json:"user_id"`
}

// CompleteBook marks a book completed and applies the completion effects
func (h *Handler) CompleteBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	if bookID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req CompleteBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.CompleteBook(r.Context(), req.UserID, bookID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSubmission) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to complete book", "error", err, "book_id", bookID)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, result)
}

// GetProgress returns a user's progression state
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	summary, err := h.service.GetProgress(r.Context(), userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get progress", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, summary)
}

// GetBadges returns a user's awarded badges
func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	awards, err := h.service.GetBadges(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get badges", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, awards)
}

// GetRankings returns the leaderboard for a period
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	period := domain.Period(chi.URLParam(r, "period"))
	if !period.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPeriod)
		return
	}

	items, err := h.service.GetRankings(r.Context(), period, h.limitParam(r))
	if err != nil {
		h.logger.Error("failed to get rankings", "error", err, "period", period)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, items)
}

// GetUserRanking returns a user's rank and total within a period
func (h *Handler) GetUserRanking(w http.ResponseWriter, r *http.Request) {
	period := domain.Period(chi.URLParam(r, "period"))
	if !period.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPeriod)
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	item, err := h.service.GetUserRanking(r.Context(), period, userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get user ranking", "error", err, "user_id", userID, "period", period)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, item)
}

// GetWeeklyChampions returns the composite-scored weekly top N
func (h *Handler) GetWeeklyChampions(w http.ResponseWriter, r *http.Request) {
	topN := h.config.ChampionTopN
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			topN = l
		}
	}
	if topN > h.config.ChampionPoolSize {
		topN = h.config.ChampionPoolSize
	}

	champions, err := h.service.GetWeeklyChampions(r.Context(), topN)
	if err != nil {
		h.logger.Error("failed to get weekly champions", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, champions)
}
