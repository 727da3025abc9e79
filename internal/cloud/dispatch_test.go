package cloud

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, doer HTTPDoer) (*Dispatcher, *SessionManager) {
	t.Helper()
	m := newTestSession(t, doer)
	return NewDispatcher(m, doer), m
}

func TestDo_AuthenticatesWhenAnonymous(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusOK, `{"code":0,"msg":"ok","data":{"devices":[]}}`)
	}}
	d, m := newTestDispatcher(t, doer)

	resp, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	reqs := doer.recorded()
	if len(reqs) != 2 {
		t.Fatalf("recorded %d requests, want login + endpoint", len(reqs))
	}
	if reqs[0].Path != PathLogin {
		t.Errorf("first request path = %q, want login before endpoint", reqs[0].Path)
	}
	if reqs[1].Path != PathDeviceList {
		t.Errorf("second request path = %q, want endpoint", reqs[1].Path)
	}
	if got := reqs[1].Header.Get("x-auth-token"); got != "T1" {
		t.Errorf("auth header = %q, want \"T1\"", got)
	}
	if m.State() != StateAuthenticated {
		t.Errorf("State() = %s, want authenticated", m.State())
	}
}

func TestDo_ExpiredTokenReauthenticatesFirst(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"FRESH","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusOK, `{"code":0,"msg":"ok","data":{}}`)
	}}
	d, m := newTestDispatcher(t, doer)

	// Seed an already-expired token the way a stale login would leave it.
	seed := &fakeDoer{handler: func(_ *http.Request, _ []byte) *http.Response {
		return jsonResponse(http.StatusOK,
			`{"code":0,"msg":"ok","data":{"auth_token":"STALE","token_expires_at":1}}`)
	}}
	m.http = seed
	if _, err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("seed Authenticate() error: %v", err)
	}
	m.http = doer
	if !m.IsExpired(time.Now()) {
		t.Fatal("seed token should be expired")
	}

	if _, err := d.Do(context.Background(), http.MethodPost, PathHubList, nil); err != nil {
		t.Fatalf("Do() error: %v", err)
	}

	// The known-stale token must never hit the wire: re-authentication
	// precedes the dispatched request.
	reqs := doer.recorded()
	if len(reqs) != 2 {
		t.Fatalf("recorded %d requests, want login + endpoint", len(reqs))
	}
	if reqs[0].Path != PathLogin {
		t.Errorf("first request path = %q, want login", reqs[0].Path)
	}
	if got := reqs[1].Header.Get("x-auth-token"); got != "FRESH" {
		t.Errorf("endpoint auth header = %q, want refreshed token", got)
	}
}

func TestDo_Unauthorized(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusUnauthorized, `{"code":401,"msg":"unauthorised"}`)
	}}
	d, m := newTestDispatcher(t, doer)

	var closes int
	m.SetOnClose(func() { closes++ })

	resp, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if m.Token() != "" {
		t.Errorf("Token() = %q, want cleared after 401", m.Token())
	}
	if closes != 1 {
		t.Errorf("close emitted %d times, want exactly 1", closes)
	}
}

func TestDo_RenewRetriesOnceAgainstNewBase(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			if req.URL.Host == "api.test.example" {
				return jsonResponse(http.StatusOK,
					`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000,"domain":"eu.api.test.example"}}`)
			}
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T2","token_expires_at":4100000000,"domain":"eu.api.test.example"}}`)
		}
		return jsonResponse(http.StatusOK, `{"code":0,"msg":"ok","data":{}}`)
	}}
	d, m := newTestDispatcher(t, doer)

	if _, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil); err != nil {
		t.Fatalf("Do() error: %v", err)
	}

	reqs := doer.recorded()
	if len(reqs) != 3 {
		t.Fatalf("recorded %d requests, want login + renewed login + endpoint", len(reqs))
	}
	if reqs[1].Path != PathLogin || reqs[1].Host != "eu.api.test.example" {
		t.Errorf("renew retry = %s on %q, want login on migrated host", reqs[1].Path, reqs[1].Host)
	}
	if reqs[2].Host != "eu.api.test.example" {
		t.Errorf("endpoint host = %q, want migrated host", reqs[2].Host)
	}
	if m.Token() != "T2" {
		t.Errorf("Token() = %q, want token from migrated base", m.Token())
	}
}

func TestDo_BusinessErrorResolvesAsData(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusBadRequest, `{"code":100028,"msg":"server busy"}`)
	}}
	d, _ := newTestDispatcher(t, doer)

	resp, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil)
	if err != nil {
		t.Fatalf("Do() error: %v, want 4xx resolved as data", err)
	}
	env, err := resp.Envelope()
	if err != nil {
		t.Fatalf("Envelope() error: %v", err)
	}
	var bizErr *BusinessError
	if !errors.As(env.Err(), &bizErr) || bizErr.Code != CodeServerBusy {
		t.Errorf("envelope error = %v, want server-busy business error", env.Err())
	}
}

func TestDo_ServerErrorIsTransport(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusServiceUnavailable, "maintenance")
	}}
	d, _ := newTestDispatcher(t, doer)

	_, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Do() error = %v, want ErrTransport", err)
	}
}

func TestDo_LoginPathSkipsPreflight(t *testing.T) {
	doer := &fakeDoer{handler: func(_ *http.Request, _ []byte) *http.Response {
		return jsonResponse(http.StatusOK, `{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
	}}
	d, _ := newTestDispatcher(t, doer)

	if _, err := d.Do(context.Background(), http.MethodPost, PathLogin, map[string]string{"email": "x"}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := len(doer.recorded()); got != 1 {
		t.Errorf("recorded %d requests, want 1 (no pre-flight auth for login)", got)
	}
}

func TestDo_AuthFailureStillAttemptsRequest(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			return jsonResponse(http.StatusOK, `{"code":26006,"msg":"wrong password"}`)
		}
		return jsonResponse(http.StatusForbidden, `{"code":1,"msg":"no session"}`)
	}}
	d, _ := newTestDispatcher(t, doer)

	// Authentication fails, but the request still goes out: the remote
	// API is the final arbiter.
	resp, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want the endpoint's own answer", resp.StatusCode)
	}

	reqs := doer.recorded()
	if len(reqs) != 2 || reqs[1].Path != PathDeviceList {
		t.Errorf("recorded %v, want login attempt followed by endpoint call", len(reqs))
	}
}

func TestDo_ConcurrentCallersShareOneLogin(t *testing.T) {
	const callers = 8

	doer := &fakeDoer{handler: func(req *http.Request, _ []byte) *http.Response {
		if req.URL.Path == PathLogin {
			// Hold the login open long enough for every caller to pile
			// onto the singleflight group.
			time.Sleep(100 * time.Millisecond)
			return jsonResponse(http.StatusOK,
				`{"code":0,"msg":"ok","data":{"auth_token":"T1","token_expires_at":4100000000}}`)
		}
		return jsonResponse(http.StatusOK, `{"code":0,"msg":"ok","data":{}}`)
	}}
	d, _ := newTestDispatcher(t, doer)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Do(context.Background(), http.MethodPost, PathDeviceList, nil); err != nil {
				t.Errorf("Do() error: %v", err)
			}
		}()
	}
	wg.Wait()

	var logins int
	for _, r := range doer.recorded() {
		if r.Path == PathLogin {
			logins++
		}
	}
	if logins != 1 {
		t.Errorf("login requests = %d, want 1 shared attempt", logins)
	}
}
