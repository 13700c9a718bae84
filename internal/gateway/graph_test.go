package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"esim-service/internal/model"
)

type staticTokens struct {
	mu          sync.Mutex
	tokens      []string
	invalidated int
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[0], nil
}

func (s *staticTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
}

func testProfile() *model.Profile {
	return &model.Profile{
		ID:             "p-1",
		DisplayName:    "Sales laptop",
		Provider:       model.ProviderMPT,
		ActivationCode: "ABCD-EFGH-1234-5678",
		SMDPServerURL:  "https://smdp.mpt.com.mm",
		DeviceID:       "group-7",
	}
}

func TestGraphDeployCreatesAndAssigns(t *testing.T) {
	var assigned assignRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/deviceManagement/deviceConfigurations":
			var cfg deviceConfiguration
			_ = json.NewDecoder(r.Body).Decode(&cfg)
			if len(cfg.OmaSettings) != 2 || cfg.OmaSettings[1].Value != "ABCD-EFGH-1234-5678" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if !strings.Contains(cfg.OmaSettings[0].OmaURI, "smdp.mpt.com.mm") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"cfg-42","displayName":"x"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/deviceManagement/deviceConfigurations/cfg-42/assign":
			_ = json.NewDecoder(r.Body).Decode(&assigned)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, &staticTokens{tokens: []string{"tok"}}, time.Second)
	res, err := client.Deploy(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("deploy returned error: %v", err)
	}
	if res.GraphID != "cfg-42" || !res.Accepted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(assigned.Assignments) != 1 || assigned.Assignments[0].Target.GroupID != "group-7" {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}
}

func TestGraphAssignBroadcast(t *testing.T) {
	var assigned assignRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&assigned)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, &staticTokens{tokens: []string{"tok"}}, time.Second)
	if err := client.Assign(context.Background(), "cfg-1", Target{}); err != nil {
		t.Fatalf("assign returned error: %v", err)
	}
	if assigned.Assignments[0].Target.ODataType != "#microsoft.graph.allDevicesAssignmentTarget" {
		t.Fatalf("expected all devices target, got %+v", assigned.Assignments[0].Target)
	}
}

func TestGraphGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/cfg-1/deviceStatusOverview") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"pendingCount":1,"successCount":3,"errorCount":1,"failedCount":0,"conflictCount":1,"notApplicableCount":4}`))
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, &staticTokens{tokens: []string{"tok"}}, time.Second)
	st, err := client.GetStatus(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("get status returned error: %v", err)
	}
	want := Status{Total: 6, Succeeded: 3, Failed: 2, Pending: 1}
	if *st != want {
		t.Fatalf("got %+v, want %+v", *st, want)
	}
}

func TestGraphRetriesOnceWithFreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"pendingCount":1}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{tokens: []string{"stale", "fresh"}}
	client := NewGraphClient(srv.URL, tokens, time.Second)
	if _, err := client.GetStatus(context.Background(), "cfg-1"); err != nil {
		t.Fatalf("get status returned error: %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", tokens.invalidated)
	}
}

func TestGraphErrorsAreGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BadRequest","message":"invalid omaUri"}}`))
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, &staticTokens{tokens: []string{"tok"}}, time.Second)
	_, err := client.Deploy(context.Background(), testProfile())
	var gwErr *model.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Call != CallDeploy || gwErr.Timeout {
		t.Fatalf("expected non-timeout deploy gateway error, got %v", err)
	}
}

func TestGraphTimeoutIsFlagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, &staticTokens{tokens: []string{"tok"}}, 50*time.Millisecond)
	_, err := client.GetStatus(context.Background(), "cfg-1")
	var gwErr *model.GatewayError
	if !errors.As(err, &gwErr) || !gwErr.Timeout {
		t.Fatalf("expected timeout gateway error, got %v", err)
	}
}

func TestSimulatorDelayHonorsDeadline(t *testing.T) {
	sim := NewSimulator()
	sim.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sim.Deploy(ctx, testProfile())
	var gwErr *model.GatewayError
	if !errors.As(err, &gwErr) || !gwErr.Timeout {
		t.Fatalf("expected timeout gateway error, got %v", err)
	}
	if sim.Calls(CallDeploy) != 1 {
		t.Fatalf("expected one deploy call, got %d", sim.Calls(CallDeploy))
	}
}
