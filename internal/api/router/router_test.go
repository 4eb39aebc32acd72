package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/auth"
	"github.com/natachasiqueira/clinicamentalize/internal/bookings"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

const testSecret = "router-test-secret"

var testNow = time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	repo    *users.InMemoryRepository
	ledger  *appointments.MemoryLedger
	psy     *users.Psychologist
}

func newTestRouter(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.New("error")
	repo := users.NewInMemoryRepository()
	psy, err := repo.CreatePsychologist(context.Background(), users.User{FullName: "Ana Souza", Email: "ana@clinica.com", Active: true})
	if err != nil {
		t.Fatalf("create psychologist: %v", err)
	}

	userService := users.NewService(repo, nil, logger).WithHashCost(bcrypt.MinCost)
	ledger := appointments.NewMemoryLedger(repo)
	templates := scheduling.StaticTemplate{Settings: clinic.DefaultSettings("America/Sao_Paulo", time.Hour)}
	clock := scheduling.FixedClock{T: testNow}
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	bookingService := bookings.NewService(bookings.NewMemoryStore(ledger, repo), templates, clock, logger)
	appointmentService := appointments.NewService(ledger, repo, nil, logger)

	cfg := &Config{
		Logger:              logger,
		AuthSecret:          testSecret,
		AuthHandler:         auth.NewHandler(userService, auth.NewIssuer(testSecret, time.Hour), logger),
		UsersHandler:        users.NewHandler(userService, logger),
		SlotsHandler:        scheduling.NewHandler(scheduling.NewEngine(ledger, templates), repo, clock, logger),
		BookingsHandler:     bookings.NewHandler(bookingService, repo, loc, logger),
		AppointmentsHandler: appointments.NewHandler(appointmentService, loc, logger),
	}
	return &testEnv{handler: New(cfg), repo: repo, ledger: ledger, psy: psy}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/register", "", users.RegisterRequest{
		FullName:        "Carla Dias",
		Email:           email,
		Phone:           "11999990000",
		Password:        "segredo123",
		ConfirmPassword: "segredo123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "segredo123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Role != string(users.RolePatient) {
		t.Fatalf("expected patient role, got %q", resp.Role)
	}
	return resp.Token
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterRequiresToken(t *testing.T) {
	env := newTestRouter(t)

	for _, path := range []string{"/me", "/admin/patients", "/psychologists/" + env.psy.ID.String() + "/slots?date=2024-06-11"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected %d, got %d", path, http.StatusUnauthorized, rr.Code)
		}
	}
}

func TestRouterAdminRoutesRejectPatients(t *testing.T) {
	env := newTestRouter(t)
	token := env.registerAndLogin(t, "carla@clinica.com")

	rr := env.do(t, http.MethodGet, "/admin/patients", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected %d, got %d", http.StatusForbidden, rr.Code)
	}
}

func TestRouterPublicPsychologists(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(t, http.MethodGet, "/psychologists", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("Ana Souza")) {
		t.Errorf("expected psychologist in listing, got %s", rr.Body.String())
	}
}

func TestRouterBookingFlow(t *testing.T) {
	env := newTestRouter(t)
	token := env.registerAndLogin(t, "carla@clinica.com")
	slotsPath := "/psychologists/" + env.psy.ID.String() + "/slots?date=2024-06-11"

	rr := env.do(t, http.MethodGet, slotsPath, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("slots: expected %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var slots struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(slots.Slots) != 10 || slots.Slots[6] != "14:00" {
		t.Fatalf("unexpected slots: %v", slots.Slots)
	}

	booking := map[string]string{
		"psychologist_id": env.psy.ID.String(),
		"date":            "2024-06-11",
		"time":            "14:00",
	}
	rr = env.do(t, http.MethodPost, "/appointments", token, booking)
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/appointments", token, booking)
	if rr.Code != http.StatusConflict {
		t.Fatalf("rebook: expected %d, got %d", http.StatusConflict, rr.Code)
	}

	rr = env.do(t, http.MethodGet, slotsPath, token, nil)
	if err := json.NewDecoder(rr.Body).Decode(&slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	for _, s := range slots.Slots {
		if s == "14:00" {
			t.Fatalf("booked slot still offered: %v", slots.Slots)
		}
	}

	items, err := env.ledger.Snapshot(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one appointment, got %d", len(items))
	}
}
