package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestService(t *testing.T, seeds []Seed) *Service {
	t.Helper()
	store, err := NewMemoryStore(nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	svc, err := NewService(context.Background(), Config{Mode: ModeAPIKey, Seeds: seeds}, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAuthenticateRequest(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, []Seed{
		{KeyID: "ops", Secret: "s3cret", Label: "运维", Permissions: []string{"tools:invoke", "tasks:read"}},
		{KeyID: "revoked", Secret: "gone", Disabled: true},
	})

	subject, err := svc.AuthenticateRequest(context.Background(), "Bearer ops:s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject.KeyID != "ops" || !subject.HasPermission("tools:invoke") {
		t.Fatalf("unexpected subject: %+v", subject)
	}
	if err := subject.Authorize("tools:invoke", "tasks:read"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := subject.Authorize("admin"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrMissingKey},
		{"not bearer", "Basic ops:s3cret", ErrMissingKey},
		{"wrong secret", "Bearer ops:wrong", ErrInvalidKey},
		{"unknown key", "Bearer ghost:s3cret", ErrInvalidKey},
		{"malformed credential", "Bearer opss3cret", ErrInvalidKey},
		{"revoked key", "Bearer revoked:gone", ErrSubjectRevoked},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := svc.AuthenticateRequest(context.Background(), tc.header); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, []Seed{
		{KeyID: "reader", Secret: "read-only", Permissions: []string{"tasks:read"}},
	})

	handler := svc.Middleware(MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			"GET":  {"tasks:read"},
			"POST": {"tools:invoke"},
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := SubjectFromContext(r.Context())
		if subject == nil {
			t.Error("subject missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	get := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	get.Header.Set("Authorization", "Bearer reader:read-only")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	post := httptest.NewRequest(http.MethodPost, "/v1/tools/invoke", nil)
	post.Header.Set("Authorization", "Bearer reader:read-only")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, post)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	anon := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDisabledModePassesThrough(t *testing.T) {
	t.Parallel()

	svc, err := NewService(context.Background(), Config{Mode: ModeDisabled}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
