package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/auth"
	"github.com/cerberodev/sapo/internal/curation"
	"github.com/cerberodev/sapo/internal/database"
	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/realtime"
	"github.com/cerberodev/sapo/internal/waitlist"
)

const testAdminEmail = "admin@example.com"

type adjustableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *adjustableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *adjustableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubGoogleVerifier struct {
	email string
	err   error
}

func (s stubGoogleVerifier) Verify(_ context.Context, _ string) (auth.GoogleClaims, error) {
	if s.err != nil {
		return auth.GoogleClaims{}, s.err
	}
	return auth.GoogleClaims{Subject: "google-subject", Email: s.email}, nil
}

type testEnv struct {
	server *httptest.Server
	clock  *adjustableClock
	gate   *auth.AdminGate
}

func newTestEnv(t *testing.T, verifier auth.IDTokenVerifier) *testEnv {
	t.Helper()

	clock := &adjustableClock{now: time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC)}
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	idProvider := identity.NewUUIDProvider()
	dispatcher := realtime.NewDispatcher()

	identityService, err := identity.NewService(identity.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("identity.NewService: %v", err)
	}

	feedService, err := feed.NewService(feed.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
		Limiter:    identity.NewSubmissionLimiter(),
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("feed.NewService: %v", err)
	}

	engagementService, err := engagement.NewService(engagement.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("engagement.NewService: %v", err)
	}

	curationService, err := curation.NewService(curation.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("curation.NewService: %v", err)
	}

	waitlistService, err := waitlist.NewService(waitlist.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("waitlist.NewService: %v", err)
	}

	composer, err := feed.NewComposer(feed.ComposerConfig{
		Database:   db,
		Modes:      curationService,
		Engagement: engagementService,
		Dispatcher: dispatcher,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("feed.NewComposer: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningKey: "server-test-signing-key-32-bytes!",
		TTL:        time.Hour,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("auth.NewTokenIssuer: %v", err)
	}
	gate, err := auth.NewAdminGate(auth.AdminGateConfig{
		Verifier:   verifier,
		Issuer:     issuer,
		AdminEmail: testAdminEmail,
	})
	if err != nil {
		t.Fatalf("auth.NewAdminGate: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Identity:   identityService,
		Feed:       feedService,
		Composer:   composer,
		Engagement: engagementService,
		Curation:   curationService,
		Waitlist:   waitlistService,
		AdminGate:  gate,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("NewHTTPHandler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{server: server, clock: clock, gate: gate}
}

// request performs an HTTP call against the test server and decodes the JSON
// response body into a generic map.
func (env *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}, http.Header) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	decoded := map[string]interface{}{}
	if len(raw) > 0 && response.Header.Get("Content-Type") != "text/csv" {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", raw, err)
		}
	}
	return response.StatusCode, decoded, response.Header
}

func (env *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	session, err := env.gate.SignIn(context.Background(), "stub-id-token")
	if err != nil {
		t.Fatalf("admin sign-in: %v", err)
	}
	return session.Token
}

func visitorHeaders(visitorID string) map[string]string {
	return map[string]string{visitorHeader: visitorID}
}

func adminHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
