package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIdentityChecker_GetMe(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantUser string
		wantErr  error
	}{
		{
			name:     "valid token",
			status:   http.StatusOK,
			body:     `{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Tone","username":"tone_bot"}}`,
			wantUser: "tone_bot",
		},
		{
			name:    "invalid token",
			status:  http.StatusUnauthorized,
			body:    `{"ok":false,"error_code":401,"description":"Unauthorized"}`,
			wantErr: ErrIdentityRejected,
		},
		{
			name:    "non-json error page",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			wantErr: ErrIdentityRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/botsecret/getMe" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewIdentityChecker(srv.URL, srv.Client())
			user, err := c.GetMe(context.Background(), "secret")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetMe() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetMe() unexpected error: %v", err)
			}
			if user.Username != tt.wantUser {
				t.Errorf("GetMe() Username = %q, want %q", user.Username, tt.wantUser)
			}
		})
	}
}

func TestIdentityChecker_GetMeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewIdentityChecker(url, nil)
	_, err := c.GetMe(context.Background(), "secret-token")
	if err == nil {
		t.Fatal("GetMe() expected error for unreachable endpoint")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("GetMe() error leaks token: %v", err)
	}
}

func TestIdentityChecker_ActivePoller(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantActive bool
	}{
		{
			name:   "no other poller",
			status: http.StatusOK,
			body:   `{"ok":true,"result":[]}`,
		},
		{
			name:       "conflicting long poll",
			status:     http.StatusConflict,
			body:       `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`,
			wantActive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/botsecret/getUpdates" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				if r.URL.Query().Get("timeout") != "0" {
					t.Errorf("expected zero timeout probe, got %q", r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			active, reason, err := NewIdentityChecker(srv.URL, srv.Client()).ActivePoller(context.Background(), "secret")
			if err != nil {
				t.Fatalf("ActivePoller() unexpected error: %v", err)
			}
			if active != tt.wantActive {
				t.Errorf("ActivePoller() = %v, want %v", active, tt.wantActive)
			}
			if tt.wantActive && !strings.Contains(reason, "Conflict") {
				t.Errorf("ActivePoller() reason = %q", reason)
			}
		})
	}
}
