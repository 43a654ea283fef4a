package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// RemoteVerifier asks the identity service to verify a token:
// POST {base}/verify {"token": ...} -> 200 {"id": ..., "username": ...}.
// 401/403 mean the token is rejected; 5xx and transport errors are retried.
type RemoteVerifier struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type RemoteOption func(*RemoteVerifier)

func WithTimeout(d time.Duration) RemoteOption {
	return func(v *RemoteVerifier) {
		if d > 0 {
			v.defaultTimeout = d
		}
	}
}

func WithRetry(max int) RemoteOption {
	return func(v *RemoteVerifier) { v.retryMax = max }
}

// WithDial replaces the client dialer.
func WithDial(dial fasthttp.DialFunc) RemoteOption {
	return func(v *RemoteVerifier) { v.http.Dial = dial }
}

func NewRemoteVerifier(baseURL string, opts ...RemoteOption) *RemoteVerifier {
	v := &RemoteVerifier{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	var out Identity
	if err := v.doJSON(ctx, "/verify", verifyRequest{Token: token}, &out); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return Identity{}, fmt.Errorf("%w: identity service returned no id", ErrUnauthorized)
	}
	return out, nil
}

func (v *RemoteVerifier) doJSON(ctx context.Context, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(v.baseURL + path)
	req.Header.SetContentType("application/json")
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := v.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := v.http.DoDeadline(req, resp, v.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			switch {
			case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
				return fmt.Errorf("%w: identity service status=%d", ErrUnauthorized, status)
			case status >= 200 && status < 300:
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("%w: decode response: %v", ErrUnauthorized, err)
				}
				return nil
			case !shouldRetryStatus(status):
				return fmt.Errorf("%w: identity service status=%d body=%s", ErrUnauthorized, status, truncate(string(resp.Body()), 256))
			}
			err = fmt.Errorf("identity service status=%d", status)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return fmt.Errorf("%w: %v", ErrUnauthorized, lastErr)
}

func (v *RemoteVerifier) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(v.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
