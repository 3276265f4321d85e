// Package fulfill performs (or, in dry-run, merely describes) order
// cancellation against the external fulfillment API. One attempt per run:
// the cancel mutation is not idempotent on the vendor side, so automated
// retries risk duplicate side effects.
package fulfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cancelbot/internal/config"
	"cancelbot/internal/logging"
)

// Failure taxonomy. Every failure is one of these, wrapped with detail.
var (
	// ErrSetup: the client could not be constructed at all (missing
	// credentials, token exchange failure).
	ErrSetup = errors.New("fulfillment client setup failed")
	// ErrProvider: the provider accepted the call but reported a business
	// error (e.g. order not cancellable).
	ErrProvider = errors.New("fulfillment provider error")
	// ErrSignature: none of the attempted call shapes were accepted.
	ErrSignature = errors.New("fulfillment call signature mismatch")
	// ErrUnexpected: anything else (transport failure, malformed response).
	ErrUnexpected = errors.New("unexpected fulfillment failure")
)

const (
	liveEndpoint    = "https://sellingpartnerapi-na.amazon.com"
	sandboxEndpoint = "https://sandbox.sellingpartnerapi-na.amazon.com"
	lwaTokenURL     = "https://api.amazon.com/auth/o2/token"
)

// Outcome is the result of one cancellation attempt.
type Outcome struct {
	OK      bool
	Payload json.RawMessage
	Err     error
}

// Adapter performs cancellation calls against the fulfillment API.
type Adapter struct {
	cfg        *config.FulfillmentConfig
	baseURL    string
	tokenURL   string
	httpClient *http.Client
}

// NewAdapter constructs the fulfillment client from the credential bundle.
// Missing required credentials are a setup failure.
func NewAdapter(cfg *config.FulfillmentConfig, timeout time.Duration) (*Adapter, error) {
	missing := missingCredentials(cfg)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrSetup, strings.Join(missing, ", "))
	}

	baseURL := liveEndpoint
	if cfg.Sandbox {
		baseURL = sandboxEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Adapter{
		cfg:        cfg,
		baseURL:    baseURL,
		tokenURL:   lwaTokenURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func missingCredentials(cfg *config.FulfillmentConfig) []string {
	var missing []string
	if cfg.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if cfg.LWAAppID == "" {
		missing = append(missing, "lwa_app_id")
	}
	if cfg.LWAClientSecret == "" {
		missing = append(missing, "lwa_client_secret")
	}
	if cfg.AWSAccessKey == "" {
		missing = append(missing, "aws_access_key")
	}
	if cfg.AWSSecretKey == "" {
		missing = append(missing, "aws_secret_key")
	}
	return missing
}

// Cancel performs the cancellation call, trying call shapes in order until
// one is accepted. Single attempt per shape, no retry of accepted calls.
func (a *Adapter) Cancel(ctx context.Context, orderID string) Outcome {
	token, err := a.accessToken(ctx)
	if err != nil {
		logging.FulfillError("token exchange failed: %v", err)
		return Outcome{Err: fmt.Errorf("%w: %v", ErrSetup, err)}
	}

	var lastShapeErr error
	for _, shape := range cancelShapes {
		req, err := shape.build(a.baseURL, orderID)
		if err != nil {
			lastShapeErr = err
			continue
		}
		req = req.WithContext(ctx)
		req.Header.Set("x-amz-access-token", token)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			logging.FulfillError("cancel request failed (%s): %v", shape.name, err)
			return Outcome{Err: fmt.Errorf("%w: %v", ErrUnexpected, err)}
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return Outcome{Err: fmt.Errorf("%w: %v", ErrUnexpected, readErr)}
		}

		switch classifyResponse(resp.StatusCode, body) {
		case respAccepted:
			logging.Fulfill("cancel accepted via %s shape for %s", shape.name, orderID)
			return Outcome{OK: true, Payload: extractPayload(body)}
		case respShapeRejected:
			logging.Fulfill("shape %s rejected, trying next", shape.name)
			lastShapeErr = fmt.Errorf("shape %s rejected: %s", shape.name, strings.TrimSpace(string(body)))
			continue
		case respProviderError:
			logging.FulfillError("provider error for %s: %s", orderID, string(body))
			return Outcome{Err: fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(body)))}
		default:
			return Outcome{Err: fmt.Errorf("%w: status %d: %s", ErrUnexpected, resp.StatusCode, strings.TrimSpace(string(body)))}
		}
	}

	return Outcome{Err: fmt.Errorf("%w: %v", ErrSignature, lastShapeErr)}
}

type responseClass int

const (
	respAccepted responseClass = iota
	respShapeRejected
	respProviderError
	respUnexpected
)

// classifyResponse sorts a cancel response into the failure taxonomy.
// A 400 complaining about the request parameters means the shape was not
// accepted by this API revision; other client errors are business errors.
func classifyResponse(status int, body []byte) responseClass {
	switch {
	case status >= 200 && status < 300:
		return respAccepted
	case status == http.StatusBadRequest:
		lower := strings.ToLower(string(body))
		if strings.Contains(lower, "invalidinput") || strings.Contains(lower, "parameter") || strings.Contains(lower, "unexpected argument") {
			return respShapeRejected
		}
		return respProviderError
	case status >= 400 && status < 500:
		return respProviderError
	default:
		return respUnexpected
	}
}

// extractPayload unwraps the provider's response envelope: the "payload"
// field when present, the raw body otherwise.
func extractPayload(body []byte) json.RawMessage {
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Payload) > 0 {
		return envelope.Payload
	}
	if len(body) == 0 || !json.Valid(body) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(body)
}

// accessToken exchanges the refresh token for an LWA access token.
func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {a.cfg.RefreshToken},
		"client_id":     {a.cfg.LWAAppID},
		"client_secret": {a.cfg.LWAClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return tokenResp.AccessToken, nil
}
