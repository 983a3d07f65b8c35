package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SubscriptionServiceInterface defines artist and genre follows
type SubscriptionServiceInterface interface {
	SubscribeArtist(ctx context.Context, userID, artistID string) error
	UnsubscribeArtist(ctx context.Context, userID, artistID string) error
	SubscribeGenre(ctx context.Context, userID, genre string) error
	UnsubscribeGenre(ctx context.Context, userID, genre string) error
	List(ctx context.Context, userID string) (*models.Subscriptions, error)
}

// SubscriptionHandler handles subscription HTTP requests for the caller
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// RegisterRoutes registers subscription routes with the chi router
func (h *SubscriptionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Put("/artists/{artistID}", h.SubscribeArtist)
		r.Delete("/artists/{artistID}", h.UnsubscribeArtist)
		r.Put("/genres/{genre}", h.SubscribeGenre)
		r.Delete("/genres/{genre}", h.UnsubscribeGenre)
	})
}

// List handles GET /subscriptions
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	subs, err := h.service.List(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, subs)
}

// SubscribeArtist handles PUT /subscriptions/artists/{artistID}
func (h *SubscriptionHandler) SubscribeArtist(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, chi.URLParam(r, "artistID"), h.service.SubscribeArtist)
}

// UnsubscribeArtist handles DELETE /subscriptions/artists/{artistID}
func (h *SubscriptionHandler) UnsubscribeArtist(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, chi.URLParam(r, "artistID"), h.service.UnsubscribeArtist)
}

// SubscribeGenre handles PUT /subscriptions/genres/{genre}
func (h *SubscriptionHandler) SubscribeGenre(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, chi.URLParam(r, "genre"), h.service.SubscribeGenre)
}

// UnsubscribeGenre handles DELETE /subscriptions/genres/{genre}
func (h *SubscriptionHandler) UnsubscribeGenre(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, chi.URLParam(r, "genre"), h.service.UnsubscribeGenre)
}

// apply runs an idempotent subscription change and answers 204.
func (h *SubscriptionHandler) apply(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	op func(ctx context.Context, userID, key string) error,
) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := op(r.Context(), claims.UserID, key); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
