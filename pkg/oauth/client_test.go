package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenIsCachedUntilExpiry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("scope") != GraphScope {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"bad form"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "app", "secret", "", nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		token, err := client.Token(context.Background())
		if err != nil {
			t.Fatalf("token returned error: %v", err)
		}
		if token != "tok-1" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single token request, got %d", calls)
	}

	now = now.Add(time.Hour)
	if _, err := client.Token(context.Background()); err != nil {
		t.Fatalf("token returned error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected refresh after expiry, got %d calls", calls)
	}
}

func TestTokenErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS7000215"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "app", "wrong", "", nil)
	if _, err := client.Token(context.Background()); err == nil {
		t.Fatalf("expected error for rejected credentials")
	}
}

func TestMicrosoftTokenURL(t *testing.T) {
	got := MicrosoftTokenURL("contoso.onmicrosoft.com")
	want := "https://login.microsoftonline.com/contoso.onmicrosoft.com/oauth2/v2.0/token"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
