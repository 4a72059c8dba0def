package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/glasswing-io/tiergate/pkg/config"
)

type httpClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *zap.SugaredLogger
}

func newHTTPClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *httpClient {
	timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.Provider.BaseURL,
		apiKey:  cfg.Provider.APIKey,
		log:     log,
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Errorw("provider_api_error", "method", method, "path", path, "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("provider api %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *httpClient) CreateCheckoutSession(ctx context.Context, req *CreateCheckoutRequest) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkouts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/checkouts/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) ChangePlan(ctx context.Context, subscriptionID string, req *ChangePlanRequest) error {
	return c.do(ctx, http.MethodPatch, "/subscriptions/"+subscriptionID+"/change-plan", req, nil)
}

func (c *httpClient) CancelSubscription(ctx context.Context, subscriptionID string, atNextBilling bool) error {
	body := map[string]any{"cancel_at_next_billing_date": atNextBilling}
	return c.do(ctx, http.MethodPatch, "/subscriptions/"+subscriptionID, body, nil)
}

func (c *httpClient) PaymentMethodUpdateLink(ctx context.Context, subscriptionID string) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	if err := c.do(ctx, http.MethodPost, "/subscriptions/"+subscriptionID+"/update-payment-method", nil, &out); err != nil {
		return "", err
	}
	return out.Link, nil
}
