package humanity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryDelay   = 200 * time.Millisecond
	maxResponseBytes    = 1 << 20
	verifyPathTemplate  = "%s/verify/%s"
	contentTypeJSON     = "application/json"
	headerAuthorization = "Authorization"
)

// OracleClientConfig bundles configuration required to instantiate an OracleClient.
type OracleClientConfig struct {
	BaseURL    string
	AppID      string
	APIKey     string
	HTTPClient *http.Client
	Retries    int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// OracleClient verifies proofs against the remote oracle over HTTP.
type OracleClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewOracleClient constructs a client with validated configuration.
func NewOracleClient(cfg OracleClientConfig) (*OracleClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidOracleConfig)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", ErrInvalidOracleConfig, err)
	}
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, fmt.Errorf("%w: app id required", ErrInvalidOracleConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OracleClient{
		endpoint:   fmt.Sprintf(verifyPathTemplate, baseURL, url.PathEscape(appID)),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger,
	}, nil
}

type verifyRequestPayload struct {
	Action     string          `json:"action"`
	Signal     string          `json:"signal"`
	SignalHash string          `json:"signal_hash"`
	Proof      json.RawMessage `json:"proof"`
}

type verifyResponsePayload struct {
	Success   bool   `json:"success"`
	Nullifier string `json:"nullifier_hash"`
	Code      string `json:"code"`
	Detail    string `json:"detail"`
}

// Verify submits the proof to the oracle. Transport failures and 5xx responses are
// retried while the context allows it.
func (c *OracleClient) Verify(ctx context.Context, request Request) (Result, error) {
	body, err := json.Marshal(verifyRequestPayload{
		Action:     request.Action,
		Signal:     request.Signal,
		SignalHash: HashSignal(request.Signal),
		Proof:      request.Proof,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode request: %v", ErrOracleUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		status, responseBody, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, ctx.Err())
			}
			lastErr = err
			c.logger.Debug("oracle request failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("oracle returned status %d", status)
			c.logger.Debug("oracle server error", zap.Int("attempt", attempt), zap.Int("status", status))
			continue
		}
		return decodeVerdict(status, responseBody)
	}
	return Result{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

func (c *OracleClient) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, responseBody, nil
}

func decodeVerdict(status int, body []byte) (Result, error) {
	var payload verifyResponsePayload
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return Result{}, fmt.Errorf("%w: decode response: %v", ErrOracleUnavailable, err)
		}
	}

	switch {
	case status == http.StatusOK && payload.Success:
		nullifier := strings.TrimSpace(payload.Nullifier)
		if nullifier == "" {
			return Result{}, ErrMissingNullifier
		}
		return Result{Accepted: true, Nullifier: nullifier}, nil
	case status == http.StatusOK:
		return Result{Accepted: false, FailureCode: classifyFailure(status, payload.Code), Detail: payload.Detail}, nil
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		if status == http.StatusUnauthorized || status == http.StatusNotFound {
			return Result{}, fmt.Errorf("%w: oracle rejected client configuration with status %d", ErrOracleUnavailable, status)
		}
		return Result{Accepted: false, FailureCode: classifyFailure(status, payload.Code), Detail: payload.Detail}, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected status %d", ErrOracleUnavailable, status)
	}
}

func classifyFailure(status int, code string) FailureCode {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "invalid_proof", "invalid_signal", "verification_error":
		return FailureInvalidProof
	case "expired_proof", "invalid_merkle_root", "root_too_old":
		return FailureExpiredProof
	case "max_verifications_reached", "limit_exhausted", "rate_limited":
		return FailureLimitExhausted
	}
	if status == http.StatusTooManyRequests {
		return FailureLimitExhausted
	}
	return FailureRejected
}

// HashSignal returns the hex encoded SHA-256 of the signal.
func HashSignal(signal string) string {
	sum := sha256.Sum256([]byte(signal))
	return hex.EncodeToString(sum[:])
}
