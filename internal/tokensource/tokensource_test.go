package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

// tokenServer records the decoded JSON body of the last request per path.
type tokenServer struct {
	bodies map[string]map[string]string
}

func newTokenServer(t *testing.T, handler func(path string, body map[string]string) (int, any)) (*httptest.Server, *tokenServer) {
	t.Helper()
	ts := &tokenServer{bodies: map[string]map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		ts.bodies[r.URL.Path] = body

		status, resp := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, ts
}

func TestExchangerLogin(t *testing.T) {
	srv, recorded := newTokenServer(t, func(path string, body map[string]string) (int, any) {
		if body["username"] == "alice" && body["password"] == "secret" {
			return http.StatusOK, map[string]any{"access_token": "a1", "refresh_token": "r1", "token_type": "bearer"}
		}
		return http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"}
	})

	ex, err := NewExchanger(Endpoint{LoginURL: srv.URL + "/auth/login", RefreshURL: srv.URL + "/auth/refresh"})
	if err != nil {
		t.Fatal(err)
	}

	tok, err := ex.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken != "a1" || tok.RefreshToken != "r1" {
		t.Errorf("token = %+v", tok)
	}

	body := recorded.bodies["/auth/login"]
	if _, ok := body["grant_type"]; ok {
		t.Error("grant_type must not be sent")
	}
	if len(body) != 2 {
		t.Errorf("login body = %v, want only username and password", body)
	}

	_, err = ex.Login(context.Background(), "alice", "wrong")
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("Login error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", retrieveErr.Response.StatusCode)
	}
}

func TestExchangerRefresh(t *testing.T) {
	tests := []struct {
		name        string
		response    map[string]any
		wantAccess  string
		wantRefresh string
	}{
		{
			name:        "refresh token kept when not rotated",
			response:    map[string]any{"access_token": "new123"},
			wantAccess:  "new123",
			wantRefresh: "r1",
		},
		{
			name:        "rotated refresh token returned",
			response:    map[string]any{"access_token": "new456", "refresh_token": "r2"},
			wantAccess:  "new456",
			wantRefresh: "r2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, recorded := newTokenServer(t, func(string, map[string]string) (int, any) {
				return http.StatusOK, tt.response
			})
			ex, err := NewExchanger(Endpoint{LoginURL: srv.URL + "/auth/login", RefreshURL: srv.URL + "/auth/refresh"})
			if err != nil {
				t.Fatal(err)
			}

			tok, err := ex.Refresh(context.Background(), "r1")
			if err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			if tok.AccessToken != tt.wantAccess || tok.RefreshToken != tt.wantRefresh {
				t.Errorf("token = %q/%q, want %q/%q", tok.AccessToken, tok.RefreshToken, tt.wantAccess, tt.wantRefresh)
			}

			body := recorded.bodies["/auth/refresh"]
			if len(body) != 1 || body["refresh_token"] != "r1" {
				t.Errorf("refresh body = %v, want {refresh_token: r1}", body)
			}
		})
	}
}

func TestExchangerRefreshFailure(t *testing.T) {
	srv, _ := newTokenServer(t, func(string, map[string]string) (int, any) {
		return http.StatusUnauthorized, map[string]string{"detail": "Refresh token expired"}
	})
	ex, err := NewExchanger(Endpoint{LoginURL: srv.URL + "/auth/login", RefreshURL: srv.URL + "/auth/refresh"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ex.Refresh(context.Background(), "stale"); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, err := ex.Refresh(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty refresh token")
	}
}

func TestNewExchangerRequiresEndpoints(t *testing.T) {
	if _, err := NewExchanger(Endpoint{LoginURL: "http://x/login"}); err == nil {
		t.Fatal("expected error for missing refresh URL")
	}
}
