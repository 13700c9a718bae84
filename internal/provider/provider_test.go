package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"esim-service/internal/model"
)

const (
	mptCode     = "ABCD-EFGH-1234-5678"
	atomCode    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	ooredooCode = "LPA:1$smdp.ooredoo.com.mm$MATCH-ID-123"
	mytelCode   = "MYTEL-ABCDEF-123456-XYZ"
)

func TestCheckFormat(t *testing.T) {
	cases := []struct {
		provider model.Provider
		code     string
		ok       bool
	}{
		{model.ProviderMPT, mptCode, true},
		{model.ProviderMPT, "ABCD-EFGH-1234-5678-ABCD-EFGH-1234-5678", true},
		{model.ProviderMPT, "ABCD-EFGH-1234", false},
		{model.ProviderMPT, "abcd-efgh-1234-5678", false},
		{model.ProviderATOM, atomCode, true},
		{model.ProviderATOM, "ABCDEFGH", false},
		{model.ProviderATOM, strings.Repeat("A", 31) + "1", false},
		{model.ProviderOoredoo, ooredooCode, true},
		{model.ProviderOoredoo, "LPA:1$smdp.ooredoo.com.mm:443$MATCH$1.3.6.1", true},
		{model.ProviderOoredoo, "smdp.ooredoo.com.mm$MATCH", false},
		{model.ProviderMytel, mytelCode, true},
		{model.ProviderMytel, "MYTEL-1", false},
		{model.ProviderMytel, "MYTELABCDEF123456XYZ1", false},
		{model.Provider("TELENOR"), mptCode, false},
	}

	for _, tc := range cases {
		err := CheckFormat(tc.provider, tc.code)
		if tc.ok && err != nil {
			t.Fatalf("%s %q: expected valid, got %v", tc.provider, tc.code, err)
		}
		if !tc.ok {
			var formatErr *model.FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("%s %q: expected format error, got %v", tc.provider, tc.code, err)
			}
		}
	}
}

func TestFormatErrorMakesNoNetworkCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	adapter := NewAdapter(allEndpoints(srv.URL), time.Second)
	for _, p := range model.Providers {
		_, err := adapter.ValidateActivationCode(context.Background(), p, "bad")
		var formatErr *model.FormatError
		if !errors.As(err, &formatErr) {
			t.Fatalf("%s: expected format error, got %v", p, err)
		}
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no provider calls, got %d", hits)
	}
}

func TestValidateMPT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mpt-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["activationCode"] == mptCode {
			_, _ = w.Write([]byte(`{"valid":true,"code":"OK","iccid":"8995"}`))
			return
		}
		_, _ = w.Write([]byte(`{"valid":false,"code":"USED","message":"already consumed"}`))
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderMPT: {Endpoint: srv.URL, Token: "mpt-token"},
	}, time.Second)

	res, err := adapter.ValidateActivationCode(context.Background(), model.ProviderMPT, mptCode)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !res.Success || res.Response["iccid"] != "8995" {
		t.Fatalf("unexpected result: %+v", res)
	}

	_, err = adapter.ValidateActivationCode(context.Background(), model.ProviderMPT, "WXYZ-EFGH-1234-5678")
	var rejection *model.BusinessRejection
	if !errors.As(err, &rejection) || rejection.Code != "USED" {
		t.Fatalf("expected business rejection, got %v", err)
	}
}

func TestValidateMPTUnauthorizedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderMPT: {Endpoint: srv.URL, Token: "wrong"},
	}, time.Second)

	_, err := adapter.ValidateActivationCode(context.Background(), model.ProviderMPT, mptCode)
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) || transportErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected transport error with 401, got %v", err)
	}
}

func TestValidateATOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "atom-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"result":"INVALID","reason":"expired"}`))
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderATOM: {Endpoint: srv.URL, APIKey: "atom-key"},
	}, time.Second)

	_, err := adapter.ValidateActivationCode(context.Background(), model.ProviderATOM, atomCode)
	var rejection *model.BusinessRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected business rejection, got %v", err)
	}
	if rejection.Message != "expired" || rejection.Response["reason"] != "expired" {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}
}

func TestValidateOoredooSOAP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("SOAPAction") != "ValidateActivationCode" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<act:Username>ooredoo</act:Username>") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <ValidateActivationCodeResponse>
      <Result>true</Result>
      <ResultCode>0</ResultCode>
      <Message>valid</Message>
      <ProfileReference>PRF-1</ProfileReference>
    </ValidateActivationCodeResponse>
  </soapenv:Body>
</soapenv:Envelope>`))
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderOoredoo: {Endpoint: srv.URL, Username: "ooredoo", Password: "secret"},
	}, time.Second)

	res, err := adapter.ValidateActivationCode(context.Background(), model.ProviderOoredoo, ooredooCode)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if res.Response["profileReference"] != "PRF-1" {
		t.Fatalf("unexpected response: %+v", res.Response)
	}
}

func TestValidateOoredooServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body><soapenv:Fault><faultcode>soapenv:Server</faultcode><faultstring>backend down</faultstring></soapenv:Fault></soapenv:Body>
</soapenv:Envelope>`))
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderOoredoo: {Endpoint: srv.URL},
	}, time.Second)

	_, err := adapter.ValidateActivationCode(context.Background(), model.ProviderOoredoo, ooredooCode)
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestValidateMytelForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") != "mytel" || r.PostForm.Get("activation_code") != mytelCode {
			_, _ = w.Write([]byte(`{"status":"05","desc":"unknown code"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"00","desc":"success"}`))
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderMytel: {Endpoint: srv.URL, Username: "mytel", Password: "pw"},
	}, time.Second)

	res, err := adapter.ValidateActivationCode(context.Background(), model.ProviderMytel, mytelCode)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if res.Response["desc"] != "success" {
		t.Fatalf("unexpected response: %+v", res.Response)
	}
}

func TestValidateTimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	adapter := NewAdapter(map[model.Provider]Credentials{
		model.ProviderMytel: {Endpoint: srv.URL},
	}, 50*time.Millisecond)

	_, err := adapter.ValidateActivationCode(context.Background(), model.ProviderMytel, mytelCode)
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func allEndpoints(url string) map[model.Provider]Credentials {
	creds := map[model.Provider]Credentials{}
	for _, p := range model.Providers {
		creds[p] = Credentials{Endpoint: url}
	}
	return creds
}
