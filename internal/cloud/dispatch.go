package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// Response is the raw outcome of a dispatched call. Interpreting the body
// (business code versus payload) is the caller's job.
type Response struct {
	StatusCode int
	Body       []byte
}

// Envelope decodes the response body as the standard API envelope.
func (r *Response) Envelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	return &env, nil
}

// Doer is the dispatch interface consumed by the endpoint services.
// Satisfied by *Dispatcher; tests substitute mocks.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (*Response, error)
}

// Dispatcher is the single chokepoint through which every API call
// passes.
//
// It guarantees two invariants:
//
//  1. A request never knowingly goes out with an expired token: expiry is
//     checked against the local clock before every call and triggers
//     re-authentication first.
//  2. Any observed 401 invalidates the session before the next call, as
//     the safety net for server-side revocation the local clock cannot
//     see.
//
// Concurrent callers that find no valid token share a single in-flight
// authentication rather than issuing redundant logins.
//
// Thread Safety: all methods except SetLogger are safe for concurrent
// use.
type Dispatcher struct {
	session *SessionManager
	http    HTTPDoer
	logger  Logger
	flight  singleflight.Group
}

// NewDispatcher creates a dispatcher bound to one session manager.
// A nil doer falls back to a default *http.Client.
func NewDispatcher(session *SessionManager, doer HTTPDoer) *Dispatcher {
	if doer == nil {
		doer = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Dispatcher{
		session: session,
		http:    doer,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher. The field is not
// guarded; call this during setup, before the first Do.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// Do dispatches one API call.
//
// Pre-flight: a missing token triggers authentication (with a single
// extra attempt on domain renewal); a locally expired token is
// invalidated and re-authenticated first, so a guaranteed-failing request
// is never sent. Authentication failures are logged but the request is
// still attempted; the remote API is the final arbiter.
//
// The call goes to the session's current API base with the token attached
// as the auth header. Statuses below 500 resolve as data so 4xx business
// errors stay inspectable; 5xx and network failures return ErrTransport.
// A 401 response invalidates the session for the next call.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - method: HTTP method
//   - path: Endpoint path relative to the API base
//   - body: JSON-encodable request body (nil for none)
//
// Returns:
//   - *Response: Raw status and body for the caller to interpret
//   - error: ErrTransport or a request-building failure
func (d *Dispatcher) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	isLogin := path == PathLogin

	if d.session.Token() == "" {
		if !isLogin {
			d.ensureSession(ctx)
		}
	} else if d.session.IsExpired(time.Now()) {
		// Known-stale token: drop it before it hits the wire.
		d.session.Invalidate()
		if !isLogin {
			d.ensureSession(ctx)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.session.APIBase()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.session.identityHeaders() {
		req.Header.Set(k, v)
	}
	if token := d.session.Token(); token != "" {
		req.Header.Set("x-auth-token", token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Server-side revocation the local clock did not catch.
		d.logger.Warn("session rejected by api", "path", path)
		d.session.Invalidate()
	}

	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// DoEnvelope dispatches a call and decodes the envelope, returning the
// business error for non-success codes. Convenience for the endpoint
// services; callers needing the raw body use Do directly.
func (d *Dispatcher) DoEnvelope(ctx context.Context, method, path string, body any) (*Envelope, error) {
	resp, err := d.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrNotAuthenticated
	}
	env, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return env, err
	}
	return env, nil
}

// ensureSession authenticates when no valid token is held. Concurrent
// callers collapse onto one in-flight attempt. A renewal result is
// retried exactly once against the migrated base; errors are logged, not
// returned; the request proceeds regardless.
func (d *Dispatcher) ensureSession(ctx context.Context) {
	_, _, _ = d.flight.Do("authenticate", func() (any, error) {
		res, err := d.session.Authenticate(ctx)
		if res == AuthRenew {
			res, err = d.session.Authenticate(ctx)
		}
		switch {
		case err != nil:
			d.logger.Warn("authentication failed, attempting request anyway", "error", err)
		case res == AuthSendVerifyCode:
			d.logger.Warn("account awaiting two-factor verification")
		}
		return res, nil
	})
}
