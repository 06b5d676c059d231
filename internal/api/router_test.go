package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/app"
	iauth "github.com/subwatch/subwatch/internal/auth"
	"github.com/subwatch/subwatch/internal/database/testutil"
	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
	"github.com/subwatch/subwatch/internal/services"
)

type routerFixture struct {
	router *gin.Engine
	db     *gorm.DB
	jwt    *iauth.JWTService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "subwatch"})
	require.NoError(t, err)

	notifications, err := services.NewNotificationService(db)
	require.NoError(t, err)
	subscriptions, err := services.NewPushSubscriptionService(db)
	require.NoError(t, err)
	preferences, err := services.NewPreferenceService(db)
	require.NoError(t, err)
	delivery, err := services.NewDeliveryService(notifications, subscriptions, preferences, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Push.VAPIDPublicKey = "test-public-key"

	router, err := NewRouter(db, jwt, cfg, delivery)
	require.NoError(t, err)

	return &routerFixture{router: router, db: db, jwt: jwt}
}

func (f *routerFixture) createUser(t *testing.T, username string, isAdmin bool) (models.User, string) {
	t.Helper()

	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		IsAdmin:  isAdmin,
	}
	require.NoError(t, f.db.Create(&user).Error)

	token, err := f.jwt.GenerateAccessToken(user.ID, isAdmin)
	require.NoError(t, err)
	return user, token
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestPushPublicKeyIsPublic(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/push/public-key", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "test-public-key")
	require.Contains(t, w.Body.String(), `"enabled":true`)
}

func TestNotificationRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/notifications", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotificationListAndReadFlow(t *testing.T) {
	f := newRouterFixture(t)
	user, token := f.createUser(t, "alice", false)

	record := models.Notification{
		Audience: models.AudienceUser,
		UserID:   &user.ID,
		Type:     notify.TypeBroadcast,
		Title:    "hello",
		UniqKey:  "router-key",
		Status:   models.StatusSent,
	}
	require.NoError(t, f.db.Create(&record).Error)

	w := f.do(t, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hello")
	require.Contains(t, w.Body.String(), `"total":1`)

	w = f.do(t, http.MethodGet, "/api/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unread":1`)

	w = f.do(t, http.MethodPost, "/api/notifications/"+record.ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/notifications/unread-count", token, nil)
	require.Contains(t, w.Body.String(), `"unread":0`)

	w = f.do(t, http.MethodDelete, "/api/notifications/"+record.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/notifications/"+record.ID, token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPushSubscribeFlow(t *testing.T) {
	f := newRouterFixture(t)
	_, token := f.createUser(t, "alice", false)

	w := f.do(t, http.MethodPost, "/api/push/subscribe", token, gin.H{
		"endpoint": "https://push.example.com/ep-1",
		"keys": gin.H{
			"p256dh": "p256-material",
			"auth":   "auth-material",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Missing keys are rejected.
	w = f.do(t, http.MethodPost, "/api/push/subscribe", token, gin.H{
		"endpoint": "https://push.example.com/ep-2",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/push/unsubscribe", token, gin.H{
		"endpoint": "https://push.example.com/ep-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/push/unsubscribe", token, gin.H{
		"endpoint": "https://push.example.com/ep-1",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreferenceFlow(t *testing.T) {
	f := newRouterFixture(t)
	_, token := f.createUser(t, "alice", false)

	w := f.do(t, http.MethodGet, "/api/preferences", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), notify.TypeRenewalUpcoming)

	w = f.do(t, http.MethodPut, "/api/preferences", token, gin.H{
		"preference_type": notify.TypeRenewalUpcoming,
		"enabled":         false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/preferences", token, nil)
	require.Contains(t, w.Body.String(), `"renewal_upcoming":false`)

	w = f.do(t, http.MethodPut, "/api/preferences", token, gin.H{
		"preference_type": "mystery_event",
		"enabled":         false,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBroadcastRequiresAdmin(t *testing.T) {
	f := newRouterFixture(t)
	user, userToken := f.createUser(t, "alice", false)
	_, adminToken := f.createUser(t, "root", true)

	payload := gin.H{
		"user_ids": []string{user.ID},
		"title":    "maintenance window",
		"message":  "service will restart tonight",
	}

	w := f.do(t, http.MethodPost, "/api/admin/notifications/broadcast", userToken, payload)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/notifications/broadcast", adminToken, payload)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"total":1`)
	require.Contains(t, w.Body.String(), `"successful":1`)

	w = f.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	require.Contains(t, w.Body.String(), "maintenance window")
}

func TestBroadcastRejectsUnknownType(t *testing.T) {
	f := newRouterFixture(t)
	user, _ := f.createUser(t, "alice", false)
	_, adminToken := f.createUser(t, "root", true)

	w := f.do(t, http.MethodPost, "/api/admin/notifications/broadcast", adminToken, gin.H{
		"user_ids": []string{user.ID},
		"title":    "t",
		"message":  "m",
		"type":     "mystery_event",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminStats(t *testing.T) {
	f := newRouterFixture(t)
	_, adminToken := f.createUser(t, "root", true)

	w := f.do(t, http.MethodGet, "/api/admin/notifications/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"total"`)
}
