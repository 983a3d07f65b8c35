package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/cadence/internal/handlers"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNotifications_PassesPaging(t *testing.T) {
	mock := &handlers.MockNotificationService{
		ListFunc: func(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, 10, limit)
			assert.Equal(t, 20, offset)
			return []*models.Notification{{ID: "n1", UserID: userID, Title: "New release"}}, nil
		},
	}
	h := handlers.NewNotificationHandler(mock)

	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/notifications?limit=10&offset=20", nil), "user-1", "listener@example.com")
	w := httptest.NewRecorder()
	h.List(w, req)

	var resp []models.Notification
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "New release", resp[0].Title)
}

func TestListNotifications_EmptyIsArray(t *testing.T) {
	h := handlers.NewNotificationHandler(&handlers.MockNotificationService{})

	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/notifications", nil), "user-1", "listener@example.com")
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListNotifications_BadPaging(t *testing.T) {
	h := handlers.NewNotificationHandler(&handlers.MockNotificationService{})

	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/notifications?limit=ten", nil), "user-1", "listener@example.com")
	w := httptest.NewRecorder()
	h.List(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestUnreadCount(t *testing.T) {
	mock := &handlers.MockNotificationService{
		UnreadCountFunc: func(ctx context.Context, userID string) (int, error) {
			return 7, nil
		},
	}
	h := handlers.NewNotificationHandler(mock)

	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/notifications/unread-count", nil), "user-1", "listener@example.com")
	w := httptest.NewRecorder()
	h.UnreadCount(w, req)

	var resp handlers.UnreadCountResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 7, resp.Unread)
}

func TestMarkRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock := &handlers.MockNotificationService{
			MarkReadFunc: func(ctx context.Context, userID, id string) error {
				assert.Equal(t, "n1", id)
				return nil
			},
		}
		h := handlers.NewNotificationHandler(mock)

		req := handlers.WithAuthContext(httptest.NewRequest("POST", "/notifications/n1/read", nil), "user-1", "listener@example.com")
		req = handlers.WithChiRouteContext(req, map[string]string{"id": "n1"})
		w := httptest.NewRecorder()
		h.MarkRead(w, req)

		assert.Equal(t, 204, w.Code)
	})

	t.Run("someone else's notification", func(t *testing.T) {
		mock := &handlers.MockNotificationService{
			MarkReadFunc: func(ctx context.Context, userID, id string) error {
				return models.ErrNotFound
			},
		}
		h := handlers.NewNotificationHandler(mock)

		req := handlers.WithAuthContext(httptest.NewRequest("POST", "/notifications/n2/read", nil), "user-1", "listener@example.com")
		req = handlers.WithChiRouteContext(req, map[string]string{"id": "n2"})
		w := httptest.NewRecorder()
		h.MarkRead(w, req)

		handlers.AssertErrorResponse(t, w, 404, "not_found")
	})
}

func TestMarkAllRead(t *testing.T) {
	mock := &handlers.MockNotificationService{
		MarkAllReadFunc: func(ctx context.Context, userID string) (int64, error) {
			return 3, nil
		},
	}
	h := handlers.NewNotificationHandler(mock)

	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/notifications/read-all", nil), "user-1", "listener@example.com")
	w := httptest.NewRecorder()
	h.MarkAllRead(w, req)

	var resp handlers.MarkAllReadResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(3), resp.Updated)
}
