package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

const testSecret = "test-secret"

func TestIssueRoundTripsThroughMiddleware(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	u := users.User{ID: uuid.New(), Role: users.RolePsychologist}

	token, expires, err := issuer.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := middleware.ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "psychologist", claims.Role)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}

func TestIssueExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := issuer.Issue(users.User{ID: uuid.New(), Role: users.RoleAdmin})
	require.NoError(t, err)
	_, err = middleware.ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestIssueWithoutSecret(t *testing.T) {
	_, _, err := NewIssuer("", 0).Issue(users.User{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func newLoginHandler(t *testing.T) (*Handler, *users.Service) {
	t.Helper()
	svc := users.NewService(users.NewInMemoryRepository(), nil, logging.New("error")).WithHashCost(bcrypt.MinCost)
	_, err := svc.RegisterPatient(context.Background(), users.RegisterRequest{
		FullName: "Ana Souza", Email: "ana@clinic.com", Phone: "1199", Password: "segredo1", ConfirmPassword: "segredo1",
	})
	require.NoError(t, err)
	return NewHandler(svc, NewIssuer(testSecret, time.Hour), logging.New("error")), svc
}

func TestLogin(t *testing.T) {
	h, _ := newLoginHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@clinic.com","password":"segredo1"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "patient", resp.Role)
	assert.Equal(t, "Ana Souza", resp.Name)
	_, err := middleware.ParseToken(testSecret, resp.Token)
	require.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	h, svc := newLoginHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@clinic.com","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	u, err := svc.Repository().GetUserByEmail(context.Background(), "ana@clinic.com")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), uuid.New(), u.ID))

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@clinic.com","password":"segredo1"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
