package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/store/memory"
)

const (
	testSecret = "test-secret"
	testIssuer = "https://id.example.test/realms/acme"
	testOrg    = "Acme Corp"
)

type testServer struct {
	t        *testing.T
	router   http.Handler
	svc      *api.Services
	verifier *identity.Verifier
	metrics  *api.Metrics
	log      *logrus.Logger
}

func newTestServer(t *testing.T, opts ...func(*api.RouterOptions)) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.New()
	t.Cleanup(func() { store.Close() })

	svc := api.NewServices(store, log)
	verifier := identity.NewVerifier([]byte(testSecret), testIssuer)
	metrics := api.NewMetrics()
	h := api.NewHandler(svc, verifier, metrics, log)

	ro := api.RouterOptions{AllowedOrigins: []string{"http://localhost:3000"}, Log: log}
	for _, o := range opts {
		o(&ro)
	}
	return &testServer{
		t:        t,
		router:   api.NewRouter(h, ro),
		svc:      svc,
		verifier: verifier,
		metrics:  metrics,
		log:      log,
	}
}

// token mints an access token for subject in org with a single realm role.
func (ts *testServer) token(subject, org, role string) string {
	ts.t.Helper()
	c := identity.Claims{
		Subject:    subject,
		Email:      subject + "@acme.test",
		GivenName:  subject,
		Groups:     []string{"/" + org},
		RealmRoles: []string{role},
	}
	tok, err := ts.verifier.Sign(c, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// team provisions an admin, a manager and an employee in testOrg, gives the
// manager and employee monthly allocations and activates two categories.
type team struct {
	admin, alice, bob string
}

func (ts *testServer) setupTeam() team {
	ts.t.Helper()
	tm := team{
		admin: ts.token("dana", testOrg, "admin"),
		alice: ts.token("alice", testOrg, "manager"),
		bob:   ts.token("bob", testOrg, "employee"),
	}
	for _, tok := range []string{tm.admin, tm.alice, tm.bob} {
		require.Equal(ts.t, http.StatusOK, ts.do(http.MethodGet, "/api/me", tok, nil).Code)
	}

	steps := []struct {
		path string
		body any
	}{
		{"/api/admin/configuration/categories/TEAMWORK", map[string]any{"is_active": true, "default_points": 10, "max_points": 30}},
		{"/api/admin/configuration/categories/EXCELLENCE", map[string]any{"is_active": true, "default_points": 15, "max_points": 50}},
		{"/api/admin/configuration/allocations/MANAGER", map[string]any{"points_per_month": 100, "max_points_per_recognition": 50}},
		{"/api/admin/configuration/allocations/EMPLOYEE", map[string]any{"points_per_month": 20, "max_points_per_recognition": 20}},
	}
	for _, s := range steps {
		rec := ts.do(http.MethodPut, s.path, tm.admin, s.body)
		require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := ts.do(http.MethodPost, "/api/admin/distribute", tm.admin, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	return tm
}
