package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"campaign-dialer/internal/config"
)

// RetellDialer talks to the Retell voice API.
//
// Two-step protocol: POST /register-call announces the attempt, then
// POST /v2/create-phone-call places it. The async call outcome arrives later
// on the webhook ingester, never on these calls.
type RetellDialer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRetellDialer(cfg config.DialerConfig) *RetellDialer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RetellDialer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *RetellDialer) Name() string { return "retell" }

func (d *RetellDialer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health http status %d", ErrProvider, resp.StatusCode)
	}
	return nil
}

func (d *RetellDialer) RegisterCall(ctx context.Context, req RegisterCallRequest) (RegisterCallResult, error) {
	if req.AgentID == "" || req.FromNumber == "" || req.ToNumber == "" {
		return RegisterCallResult{}, ErrInvalidRequest
	}

	payload := map[string]any{
		"agent_id":                     req.AgentID,
		"from_number":                  req.FromNumber,
		"to_number":                    req.ToNumber,
		"retell_llm_dynamic_variables": req.Vars,
	}
	if err := d.post(ctx, "/register-call", payload, nil); err != nil {
		return RegisterCallResult{}, err
	}
	return RegisterCallResult{Registered: true}, nil
}

func (d *RetellDialer) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.FromNumber == "" || req.ToNumber == "" {
		return PlaceCallResult{}, ErrInvalidRequest
	}

	payload := map[string]any{
		"from_number":                  req.FromNumber,
		"to_number":                    req.ToNumber,
		"retell_llm_dynamic_variables": req.Vars,
	}
	if req.OverrideAgentID != "" {
		payload["override_agent_id"] = req.OverrideAgentID
	}

	var out struct {
		CallID string `json:"call_id"`
	}
	if err := d.post(ctx, "/v2/create-phone-call", payload, &out); err != nil {
		return PlaceCallResult{}, err
	}
	if out.CallID == "" {
		return PlaceCallResult{}, fmt.Errorf("%w: empty call_id", ErrProvider)
	}
	return PlaceCallResult{CallID: out.CallID}, nil
}

func (d *RetellDialer) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s http status %d: %s", ErrProvider, path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProvider, path, err)
	}
	return nil
}
