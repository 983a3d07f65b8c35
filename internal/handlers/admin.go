package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminAccountServiceInterface defines the account operations reserved to admins
type AdminAccountServiceInterface interface {
	SetRole(ctx context.Context, actorID, userID, role string) (*models.User, error)
	Disable(ctx context.Context, actorID, userID string) error
}

// PublisherInterface fans a notification out to subscribers
type PublisherInterface interface {
	PublishToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error)
	PublishToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error)
}

// AdminHandler handles admin-only HTTP requests.
type AdminHandler struct {
	accounts  AdminAccountServiceInterface
	publisher PublisherInterface
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts AdminAccountServiceInterface, publisher PublisherInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, publisher: publisher, logger: logger}
}

// SetRoleRequest represents the request body for changing a role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN"`
}

// PublishRequest represents a notification to fan out
type PublishRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=2000"`
}

// PublishResponse reports how many notifications were created
type PublishResponse struct {
	Delivered int64 `json:"delivered"`
}

// RegisterRoutes registers admin routes. The caller is responsible for
// authentication and the admin role check.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Put("/users/{id}/role", h.SetRole)
	router.Post("/users/{id}/disable", h.Disable)
	router.Post("/notifications/artists/{artistID}", h.PublishArtist)
	router.Post("/notifications/genres/{genre}", h.PublishGenre)
}

// SetRole handles PUT /admin/users/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SetRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.accounts.SetRole(r.Context(), claims.UserID, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// Disable handles POST /admin/users/{id}/disable
func (h *AdminHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.accounts.Disable(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PublishArtist handles POST /admin/notifications/artists/{artistID}
func (h *AdminHandler) PublishArtist(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, chi.URLParam(r, "artistID"), h.publisher.PublishToArtistSubscribers)
}

// PublishGenre handles POST /admin/notifications/genres/{genre}
func (h *AdminHandler) PublishGenre(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, chi.URLParam(r, "genre"), h.publisher.PublishToGenreSubscribers)
}

func (h *AdminHandler) publish(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	fanOut func(ctx context.Context, key, title, body string) (int64, error),
) {
	var req PublishRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	delivered, err := fanOut(r.Context(), key, req.Title, req.Body)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.logger.Info("notification published", slog.String("key", key), slog.Int64("delivered", delivered))
	pkghttp.WriteJSON(w, http.StatusOK, PublishResponse{Delivered: delivered})
}
