package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
)

// NotificationServiceInterface defines the caller's notification inbox
type NotificationServiceInterface interface {
	List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	service NotificationServiceInterface
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// UnreadCountResponse is the body of GET /notifications/unread-count
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// MarkAllReadResponse reports how many notifications changed state
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// RegisterRoutes registers notification routes with the chi router
func (h *NotificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/unread-count", h.UnreadCount)
		r.Post("/read-all", h.MarkAllRead)
		r.Post("/{id}/read", h.MarkRead)
	})
}

// List handles GET /notifications?limit=&offset=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit, ok := queryInt(r, "limit")
	if !ok {
		pkghttp.WriteBadRequest(w, "limit must be an integer")
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		pkghttp.WriteBadRequest(w, "offset must be an integer")
		return
	}

	notifications, err := h.service.List(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, notifications)
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UnreadCountResponse{Unread: count})
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.MarkRead(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MarkAllReadResponse{Updated: updated})
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
