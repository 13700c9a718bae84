package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esim-service/internal/model"
	"esim-service/pkg/logger"
	"esim-service/prometheus"

	"go.uber.org/zap"
)

// TokenSource supplies bearer tokens for Graph; *oauth.Client satisfies it
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// GraphClient talks to the Intune deviceManagement API
type GraphClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewGraphClient builds a client. timeout bounds every call, token fetch included.
func NewGraphClient(baseURL string, tokens TokenSource, timeout time.Duration) *GraphClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GraphClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type omaSetting struct {
	ODataType   string `json:"@odata.type"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	OmaURI      string `json:"omaUri"`
	Value       any    `json:"value"`
}

type deviceConfiguration struct {
	ODataType   string       `json:"@odata.type"`
	ID          string       `json:"id,omitempty"`
	DisplayName string       `json:"displayName"`
	Description string       `json:"description,omitempty"`
	OmaSettings []omaSetting `json:"omaSettings"`
}

type assignmentTarget struct {
	ODataType string `json:"@odata.type"`
	GroupID   string `json:"groupId,omitempty"`
}

type assignment struct {
	Target assignmentTarget `json:"target"`
}

type assignRequest struct {
	Assignments []assignment `json:"assignments"`
}

type statusOverview struct {
	PendingCount       int `json:"pendingCount"`
	NotApplicableCount int `json:"notApplicableCount"`
	SuccessCount       int `json:"successCount"`
	ErrorCount         int `json:"errorCount"`
	FailedCount        int `json:"failedCount"`
	ConflictCount      int `json:"conflictCount"`
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Deploy creates a Windows custom configuration carrying the eUICC download
// server and activation code, then assigns it to the profile's device (or all devices).
func (g *GraphClient) Deploy(ctx context.Context, profile *model.Profile) (*DeployResult, error) {
	smdpHost := profile.SMDPServerURL
	if u, err := url.Parse(profile.SMDPServerURL); err == nil && u.Host != "" {
		smdpHost = u.Host
	}

	cfg := deviceConfiguration{
		ODataType:   "#microsoft.graph.windows10CustomConfiguration",
		DisplayName: "eSIM - " + profile.DisplayName,
		Description: fmt.Sprintf("eSIM profile %s (%s)", profile.ID, profile.Provider),
		OmaSettings: []omaSetting{
			{
				ODataType:   "#microsoft.graph.omaSettingString",
				DisplayName: "eSIM download server",
				OmaURI:      fmt.Sprintf("./Device/Vendor/MSFT/eUICCs/%s/DownloadServers/%s/IsDiscoveryServer", profile.ID, smdpHost),
				Value:       "false",
			},
			{
				ODataType:   "#microsoft.graph.omaSettingString",
				DisplayName: "eSIM activation code",
				OmaURI:      fmt.Sprintf("./Device/Vendor/MSFT/eUICCs/%s/Profiles/%s/ActivationCode", profile.ID, profile.ID),
				Value:       profile.ActivationCode,
			},
		},
	}

	var created deviceConfiguration
	if err := g.call(ctx, CallDeploy, http.MethodPost, "/deviceManagement/deviceConfigurations", cfg, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, &model.GatewayError{Call: CallDeploy, Err: errors.New("configuration created without id")}
	}

	if err := g.Assign(ctx, created.ID, Target{DeviceID: profile.DeviceID}); err != nil {
		return nil, err
	}
	return &DeployResult{GraphID: created.ID, Accepted: true}, nil
}

// Assign targets a configuration at a device group, or all devices for a broadcast target
func (g *GraphClient) Assign(ctx context.Context, graphID string, target Target) error {
	t := assignmentTarget{ODataType: "#microsoft.graph.allDevicesAssignmentTarget"}
	if !target.Broadcast() {
		t = assignmentTarget{ODataType: "#microsoft.graph.groupAssignmentTarget", GroupID: target.DeviceID}
	}
	body := assignRequest{Assignments: []assignment{{Target: t}}}
	path := "/deviceManagement/deviceConfigurations/" + url.PathEscape(graphID) + "/assign"
	return g.call(ctx, CallAssign, http.MethodPost, path, body, nil)
}

// GetStatus reads the configuration's device status overview
func (g *GraphClient) GetStatus(ctx context.Context, graphID string) (*Status, error) {
	var overview statusOverview
	path := "/deviceManagement/deviceConfigurations/" + url.PathEscape(graphID) + "/deviceStatusOverview"
	if err := g.call(ctx, CallGetStatus, http.MethodGet, path, nil, &overview); err != nil {
		return nil, err
	}
	failed := overview.ErrorCount + overview.FailedCount + overview.ConflictCount
	return &Status{
		Total:     overview.PendingCount + overview.SuccessCount + failed,
		Succeeded: overview.SuccessCount,
		Failed:    failed,
		Pending:   overview.PendingCount,
	}, nil
}

func (g *GraphClient) call(ctx context.Context, name, method, path string, in, out any) error {
	log := logger.FromContext(ctx).With(zap.String("gateway_call", name), zap.String("path", path))
	start := time.Now()

	err := g.do(ctx, name, method, path, in, out, true)
	outcome := "success"
	if err != nil {
		outcome = "error"
		var gwErr *model.GatewayError
		if errors.As(err, &gwErr) && gwErr.Timeout {
			outcome = "timeout"
		}
		log.Error("Graph call failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
	} else {
		log.Info("Graph call completed", zap.Duration("latency", time.Since(start)))
	}
	prometheus.ObserveGatewayCall(name, outcome, time.Since(start))
	return err
}

func (g *GraphClient) do(ctx context.Context, name, method, path string, in, out any, retryAuth bool) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return classify(name, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &model.GatewayError{Call: name, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &model.GatewayError{Call: name, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return classify(name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(name, err)
	}

	// token revoked or rotated; one retry with a fresh token
	if resp.StatusCode == http.StatusUnauthorized && retryAuth {
		g.tokens.Invalidate()
		return g.do(ctx, name, method, path, in, out, false)
	}

	if resp.StatusCode >= 400 {
		var gErr graphError
		if json.Unmarshal(respBody, &gErr) == nil && gErr.Error.Code != "" {
			return &model.GatewayError{Call: name, Err: fmt.Errorf("graph %d %s: %s", resp.StatusCode, gErr.Error.Code, gErr.Error.Message)}
		}
		return &model.GatewayError{
			Call:    name,
			Timeout: resp.StatusCode == http.StatusGatewayTimeout,
			Err:     fmt.Errorf("graph %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &model.GatewayError{Call: name, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func classify(name string, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &model.GatewayError{Call: name, Timeout: timeout, Err: err}
}
