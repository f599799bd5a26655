package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

type authServiceMock struct {
	signupReq models.SignupRequest
	loginReq  models.LoginRequest
	resp      *models.AuthResponse
	info      *models.UserInfo
	err       error
}

func (m *authServiceMock) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error) {
	m.signupReq = req
	return m.resp, m.err
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	m.loginReq = req
	return m.resp, m.err
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return m.info, m.err
}

func TestAuthHandlerSignup(t *testing.T) {
	mockSvc := &authServiceMock{resp: &models.AuthResponse{AccessToken: "tok", User: models.UserInfo{ID: "u-1", Role: models.RoleChairman}}}
	handler := NewAuthHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"name": "Rahim", "email": "r@uni.edu", "password": "secret1", "designation": "chairman"})
	c, w := newGinContext(http.MethodPost, "/auth/signup", payload)
	c.Request.Header.Set("User-Agent", "cli")

	handler.Signup(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RoleChairman, mockSvc.signupReq.Designation)
	assert.Equal(t, "cli", mockSvc.signupReq.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"tok"`)
}

func TestAuthHandlerSignupRejectsMalformedJSON(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})
	c, w := newGinContext(http.MethodPost, "/auth/signup", []byte("{"))

	handler.Signup(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestAuthHandlerLoginDesignationMismatch(t *testing.T) {
	mockSvc := &authServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "this login is for dean only")}
	handler := NewAuthHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"email": "d@uni.edu", "password": "secret1", "designation": "vc"})
	c, w := newGinContext(http.MethodPost, "/auth/login", payload)

	handler.Login(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "this login is for dean only", env.Error.Message)
	assert.Equal(t, models.RoleVC, mockSvc.loginReq.Designation)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{info: &models.UserInfo{ID: "u-1", Name: "Dean", Role: models.RoleDean}})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	withUser(c, "u-1", models.RoleDean)
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"dean"`)
}
