package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"house_screens/internal/models"
	"house_screens/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockReconciler struct {
	out     service.Outcome
	err     error
	calls   int
	forces  []bool
	lastCtx context.Context
}

func (m *mockReconciler) Reconcile(ctx context.Context, force bool) (service.Outcome, error) {
	m.calls++
	m.lastCtx = ctx
	m.forces = append(m.forces, force)
	return m.out, m.err
}

type mockMonitoring struct {
	mu         sync.Mutex
	state      service.StateSnapshot
	err        error
	shownErr   error
	shownCalls int
}

func (m *mockMonitoring) GetState(ctx context.Context) (service.StateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) MarkRefreshShown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shownCalls++
	return m.shownErr
}

type mockPairing struct {
	res          service.PairResult
	pairErr      error
	announceErr  error
	lastPaired   string
	lastAnnounce string
	lastPairCtx  context.Context
}

func (m *mockPairing) Pair(ctx context.Context, houseID string) (service.PairResult, error) {
	m.lastPaired = houseID
	m.lastPairCtx = ctx
	return m.res, m.pairErr
}

func (m *mockPairing) AnnounceHouseCreated(ctx context.Context, houseID string) error {
	m.lastAnnounce = houseID
	return m.announceErr
}

type mockEventLog struct {
	resp      []models.ReconcileEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastHouse string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ReconcileEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastHouse = f.HouseID
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
