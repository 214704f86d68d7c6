package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/pkg/auth"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/pagination"
	"github.com/sanctuarypay/tithe-backend/pkg/security"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubMembers struct{ id uuid.UUID }

func (s stubMembers) Ensure(_ context.Context, subject string, _ *auth.MemberClaims) (*models.Member, error) {
	return &models.Member{ID: s.id, ExternalSubject: subject}, nil
}

type stubEngine struct {
	mu      sync.Mutex
	opened  int
	flagged int
	applied int
}

func (s *stubEngine) OpenIntent(_ context.Context, req reconciliation.OpenRequest) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	ref := fmt.Sprintf("ref-%d", s.opened)
	return &models.PaymentIntent{ID: uuid.New(), Provider: req.Provider, State: enums.IntentStatePendingProviderAck, ProviderReference: &ref}, nil
}

func (s *stubEngine) Intent(_ context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
}

func (s *stubEngine) Flagged(_ context.Context, _ pagination.Params) (pagination.Page[models.PaymentIntent], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagged++
	return pagination.Page[models.PaymentIntent]{}, nil
}

func (s *stubEngine) Authenticate(_ context.Context, _ enums.Provider, _ []byte, signature string) error {
	if signature != "valid" {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, reconciliation.ErrUnauthorized, "invalid callback signature")
	}
	return nil
}

func (s *stubEngine) ApplyCallback(_ context.Context, _ enums.Provider, _ []byte, _ string) (reconciliation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied++
	return reconciliation.Result{Kind: reconciliation.ResultNotFound}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

type testRouter struct {
	handler http.Handler
	engine  *stubEngine
	cfg     *config.Config
}

func newTestRouter(t *testing.T) testRouter {
	t.Helper()
	hash, err := security.HashAPIKey("operator-key", config.OperatorConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32})
	require.NoError(t, err)

	cfg := &config.Config{
		App:      config.AppConfig{Env: "test"},
		JWT:      config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 30},
		Operator: config.OperatorConfig{KeyHash: hash},
		Webhooks: config.WebhooksConfig{MaxBodyBytes: 1 << 16},
	}
	engine := &stubEngine{}
	handler := NewRouter(Dependencies{
		Config:      cfg,
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Idempotency: &memoryStore{data: map[string]string{}},
		Members:     stubMembers{id: uuid.New()},
		Engine:      engine,
		Gatherer:    prometheus.NewRegistry(),
	})
	return testRouter{handler: handler, engine: engine, cfg: cfg}
}

func (tr testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	return resp
}

func (tr testRouter) bearer(t *testing.T) string {
	t.Helper()
	token, err := auth.MintMemberToken(tr.cfg.JWT, time.Now(), auth.MemberTokenPayload{Subject: "member-1"})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	tr := newTestRouter(t)

	assert.Equal(t, http.StatusOK, tr.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, tr.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	assert.Equal(t, http.StatusOK, tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
}

func TestIntentRoutesRequireMemberToken(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(httptest.NewRequest(http.MethodPost, "/api/v1/intents", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = tr.do(httptest.NewRequest(http.MethodGet, "/api/v1/intents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, tr.engine.opened)
}

func TestOpenIntentReplaysIdempotentRequests(t *testing.T) {
	tr := newTestRouter(t)
	body := `{"amount":500,"payerIdentifier":"0712345678","purpose":"tithe","provider":"mpesa"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", strings.NewReader(body))
		req.Header.Set("Authorization", tr.bearer(t))
		req.Header.Set("Idempotency-Key", "give-1")
		return tr.do(req)
	}

	first := send()
	second := send()

	require.Equal(t, http.StatusAccepted, first.Code, first.Body.String())
	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, tr.engine.opened)
}

func TestIntentStatusRoute(t *testing.T) {
	tr := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/intents/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", tr.bearer(t))
	assert.Equal(t, http.StatusNotFound, tr.do(req).Code)
}

func TestWebhookRoutes(t *testing.T) {
	tr := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(`{}`))
	req.Header.Set("X-Callback-Signature", "forged")
	assert.Equal(t, http.StatusUnauthorized, tr.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(`{}`))
	req.Header.Set("X-Callback-Signature", "valid")
	resp := tr.do(req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"ResultDesc":"Accepted"`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", strings.NewReader(`{}`))
	req.Header.Set("X-Square-Hmacsha256-Signature", "valid")
	resp = tr.do(req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"received":true`)

	assert.Equal(t, 2, tr.engine.applied)
}

func TestAdminRoutesRequireOperatorKey(t *testing.T) {
	tr := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/intents/flagged", nil)
	req.Header.Set("Authorization", tr.bearer(t))
	assert.Equal(t, http.StatusUnauthorized, tr.do(req).Code, "member tokens do not grant operator access")

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/intents/flagged", nil)
	req.Header.Set("X-Operator-Key", "operator-key")
	assert.Equal(t, http.StatusOK, tr.do(req).Code)
	assert.Equal(t, 1, tr.engine.flagged)
}
