package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"esim-service/internal/model"
)

// MPT: bearer-token REST
func validateTokenREST(ctx context.Context, a *Adapter, creds Credentials, code string) (map[string]any, error) {
	body, _ := json.Marshal(map[string]string{"activationCode": code})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(creds.Endpoint, "/")+"/v1/activation-codes/validate", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(model.ProviderMPT, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	var resp struct {
		Valid   bool   `json:"valid"`
		Code    string `json:"code"`
		Message string `json:"message"`
		ICCID   string `json:"iccid"`
	}
	raw, err := doJSON(a.httpClient, req, model.ProviderMPT, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, &model.BusinessRejection{Provider: model.ProviderMPT, Code: resp.Code, Message: resp.Message, Response: raw}
	}
	return raw, nil
}

// ATOM: API-key REST
func validateAPIKeyREST(ctx context.Context, a *Adapter, creds Credentials, code string) (map[string]any, error) {
	body, _ := json.Marshal(map[string]string{"activation_code": code})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(creds.Endpoint, "/")+"/v2/esim/validate", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(model.ProviderATOM, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", creds.APIKey)

	var resp struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	}
	raw, err := doJSON(a.httpClient, req, model.ProviderATOM, &resp)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Result, "VALID") {
		return nil, &model.BusinessRejection{Provider: model.ProviderATOM, Code: resp.Result, Message: resp.Reason, Response: raw}
	}
	return raw, nil
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	SoapNS  string   `xml:"xmlns:soapenv,attr"`
	ActNS   string   `xml:"xmlns:act,attr"`
	Header  struct {
		Auth struct {
			Username string `xml:"act:Username"`
			Password string `xml:"act:Password"`
		} `xml:"act:AuthHeader"`
	} `xml:"soapenv:Header"`
	Body struct {
		Request struct {
			ActivationCode string `xml:"act:ActivationCode"`
		} `xml:"act:ValidateActivationCode"`
	} `xml:"soapenv:Body"`
}

type soapResponse struct {
	Body struct {
		Response struct {
			Result     bool   `xml:"Result"`
			ResultCode string `xml:"ResultCode"`
			Message    string `xml:"Message"`
			ProfileRef string `xml:"ProfileReference"`
		} `xml:"ValidateActivationCodeResponse"`
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// OOREDOO: SOAP/XML
func validateSOAP(ctx context.Context, a *Adapter, creds Credentials, code string) (map[string]any, error) {
	env := soapEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		ActNS:  "http://esim.ooredoo.com.mm/activation",
	}
	env.Header.Auth.Username = creds.Username
	env.Header.Auth.Password = creds.Password
	env.Body.Request.ActivationCode = code

	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, transportError(model.ProviderOoredoo, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.Endpoint, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, transportError(model.ProviderOoredoo, 0, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "ValidateActivationCode")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, transportError(model.ProviderOoredoo, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(model.ProviderOoredoo, resp.StatusCode, err)
	}

	var parsed soapResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		if isTransportStatus(resp.StatusCode) || resp.StatusCode >= 400 {
			return nil, transportError(model.ProviderOoredoo, resp.StatusCode, fmt.Errorf("unexpected response: %s", truncate(body)))
		}
		return nil, transportError(model.ProviderOoredoo, resp.StatusCode, fmt.Errorf("parse soap response: %w", err))
	}

	raw := map[string]any{
		"httpStatus": resp.StatusCode,
		"body":       string(body),
	}
	if parsed.Body.Fault != nil {
		// soap:Server faults are infrastructure problems, soap:Client faults are about the request
		if strings.Contains(parsed.Body.Fault.Code, "Server") || isTransportStatus(resp.StatusCode) {
			return nil, transportError(model.ProviderOoredoo, resp.StatusCode, fmt.Errorf("soap fault %s: %s", parsed.Body.Fault.Code, parsed.Body.Fault.String))
		}
		return nil, &model.BusinessRejection{Provider: model.ProviderOoredoo, Code: parsed.Body.Fault.Code, Message: parsed.Body.Fault.String, Response: raw}
	}
	if isTransportStatus(resp.StatusCode) {
		return nil, transportError(model.ProviderOoredoo, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	r := parsed.Body.Response
	raw["resultCode"] = r.ResultCode
	raw["message"] = r.Message
	raw["profileReference"] = r.ProfileRef
	if !r.Result {
		return nil, &model.BusinessRejection{Provider: model.ProviderOoredoo, Code: r.ResultCode, Message: r.Message, Response: raw}
	}
	return raw, nil
}

// MYTEL: form-encoded partner API
func validateForm(ctx context.Context, a *Adapter, creds Credentials, code string) (map[string]any, error) {
	data := url.Values{}
	data.Set("username", creds.Username)
	data.Set("password", creds.Password)
	data.Set("activation_code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(creds.Endpoint, "/")+"/api/esim/check", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, transportError(model.ProviderMytel, 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp struct {
		Status string `json:"status"`
		Desc   string `json:"desc"`
	}
	raw, err := doJSON(a.httpClient, req, model.ProviderMytel, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "00" {
		return nil, &model.BusinessRejection{Provider: model.ProviderMytel, Code: resp.Status, Message: resp.Desc, Response: raw}
	}
	return raw, nil
}

// doJSON executes req, classifies transport failures and decodes the body
// into both out and a raw map kept for the audit trail.
func doJSON(client *http.Client, req *http.Request, p model.Provider, out any) (map[string]any, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(p, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(p, resp.StatusCode, err)
	}
	if isTransportStatus(resp.StatusCode) {
		return nil, transportError(p, resp.StatusCode, fmt.Errorf("unexpected response: %s", truncate(body)))
	}

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, transportError(p, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, transportError(p, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	raw["httpStatus"] = resp.StatusCode
	return raw, nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
