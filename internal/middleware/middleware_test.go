package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-committee-api/internal/models"
	"github.com/noah-isme/exam-committee-api/internal/service"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

type authenticatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (a *authenticatorStub) Authenticate(ctx context.Context, token string) (*models.JWTClaims, error) {
	a.token = token
	return a.claims, a.err
}

type auditWriterStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "role": claims.Role})
	})
	r.GET("/items/:id", handlers...)
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newRouter(JWT(&authenticatorStub{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, w))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := newRouter(JWT(&authenticatorStub{}))

	for _, header := range []string{"Token abc", "Bearer", "Bearer   "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTPropagatesAuthenticatorError(t *testing.T) {
	auth := &authenticatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}
	r := newRouter(JWT(auth))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "bad-token", auth.token)
}

func TestJWTStoresClaims(t *testing.T) {
	auth := &authenticatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleDean}}
	r := newRouter(JWT(auth))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Authorization", "bearer good")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":"u-1"`)
	assert.Contains(t, w.Body.String(), `"role":"dean"`)
}

func TestRequireRoles(t *testing.T) {
	withClaims := func(role models.UserRole) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "u", Role: role})
			c.Next()
		}
	}

	cases := []struct {
		role   models.UserRole
		status int
	}{
		{models.RoleChairman, http.StatusOK},
		{models.RoleDean, http.StatusForbidden},
		{models.RoleController, http.StatusForbidden},
	}
	for _, tc := range cases {
		r := newRouter(withClaims(tc.role), RequireRoles(models.RoleChairman))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
		assert.Equal(t, tc.status, w.Code, string(tc.role))
	}

	r := newRouter(RequireRoles(models.RoleChairman))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	writer := &auditWriterStub{}
	setUser := func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-9", Role: models.RoleVC})
		c.Next()
	}
	r := newRouter(setUser, Audit(writer, nil, models.AuditActionSummaryFetch, "proposal_summary"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/p-1", nil)
	req.Header.Set("User-Agent", "test-agent")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, writer.logs, 1)
	entry := writer.logs[0]
	assert.Equal(t, models.AuditActionSummaryFetch, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-9", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "p-1", *entry.ResourceID)
	assert.Equal(t, "test-agent", entry.UserAgent)
}

func TestAuditSkipsFailedRequestsAndToleratesWriterErrors(t *testing.T) {
	writer := &auditWriterStub{err: errors.New("db down")}
	r := newRouter(JWT(&authenticatorStub{}), Audit(writer, nil, models.AuditActionSummaryFetch, "proposal_summary"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, writer.logs)

	r = newRouter(Audit(writer, nil, models.AuditActionSummaryFetch, "proposal_summary"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, writer.logs, 1)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/ref", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ref", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/proposals/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/proposals/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `path="/proposals/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "/random/path")
}
