package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Default values for the session layer.
const (
	// defaultAPIBase is the initial API endpoint. A login response may
	// redirect the session to the account's regional home domain.
	defaultAPIBase = "https://mysecurity.hearthcloud.com/api"

	// defaultRequestTimeout bounds a single HTTP exchange.
	defaultRequestTimeout = 30 * time.Second

	// millisPerSecond converts the API's epoch-second expiry to the
	// millisecond instant it actually means.
	millisPerSecond = 1000
)

// trustedTokenExpiry is the far-future expiry granted to a session whose
// device has completed two-factor trust elevation. Effectively
// non-expiring.
var trustedTokenExpiry = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

// State is the position of a session in the authentication lifecycle.
type State int

// Session states.
const (
	// StateAnonymous holds no token.
	StateAnonymous State = iota

	// StateAuthenticating has a login in flight.
	StateAuthenticating

	// StateAuthenticated holds a valid, time-bounded token.
	StateAuthenticated

	// StateAwaiting2FA holds a token but the account requires a
	// verification code before the session is fully usable.
	StateAwaiting2FA

	// StateTrusted holds a long-lived token on a trusted device.
	StateTrusted
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAwaiting2FA:
		return "awaiting_2fa"
	case StateTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// AuthResult is the protocol-level outcome of an authentication attempt.
type AuthResult int

// Authentication outcomes.
const (
	// AuthOK means the session is authenticated.
	AuthOK AuthResult = iota

	// AuthSendVerifyCode means the account requires two-factor
	// verification; a code has been dispatched.
	AuthSendVerifyCode

	// AuthRenew means the API base switched to the account's home
	// domain; the caller must re-invoke Authenticate exactly once.
	AuthRenew

	// AuthError means the attempt failed. Retry policy is the caller's
	// responsibility; the session never retries internally.
	AuthError
)

// VerifyChannel selects where a one-time verification code is delivered.
type VerifyChannel int

// Verification code channels. The values are the API's message_type codes.
const (
	ChannelPhone VerifyChannel = 1
	ChannelEmail VerifyChannel = 2
)

// Credentials are the account login credentials. Immutable for the
// lifetime of a SessionManager.
type Credentials struct {
	Username string
	Password string
}

// HTTPDoer is the abstract transport the session layer depends on.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// loginData is the envelope payload of the login and verification
// endpoints.
type loginData struct {
	AuthToken      string `json:"auth_token"`
	TokenExpiresAt int64  `json:"token_expires_at"`
	Domain         string `json:"domain"`
	UserID         string `json:"user_id"`
}

// TrustedDevice is one entry in the account's trusted-device listing,
// used only during the two-factor elevation flow.
type TrustedDevice struct {
	DeviceID        string `json:"device_id"`
	PhoneModel      string `json:"phone_model"`
	OpenUDID        string `json:"open_udid"`
	IsCurrentDevice bool   `json:"is_current_device"`
}

// trustDeviceListData is the envelope payload of the trusted-device
// listing endpoint.
type trustDeviceListData struct {
	Devices []TrustedDevice `json:"devices"`
}

// SessionManager owns the credentials, token, expiry and API base for one
// account session, and executes the authentication protocol.
//
// It is the single source of truth for authentication state. The
// Dispatcher consults it before every request; nothing else mutates the
// session.
//
// Thread Safety: all methods except SetLogger are safe for concurrent
// use. Callbacks are invoked without internal locks held.
type SessionManager struct {
	creds    Credentials
	identity Identity
	http     HTTPDoer
	logger   Logger

	mu             sync.Mutex
	state          State
	token          string
	tokenExpiresAt time.Time
	apiBase        string
	trustedUntil   time.Time

	// Callbacks for session lifecycle events (optional).
	onConnect  func()
	onClose    func()
	callbackMu sync.RWMutex
}

// NewSessionManager creates a session manager for the given account.
//
// The identity's country and language codes are validated synchronously;
// an invalid code is returned immediately, before any network call. A nil
// doer falls back to a default *http.Client.
//
// Parameters:
//   - creds: Account credentials (immutable for the manager's lifetime)
//   - identity: Device/client identity headers (defaults applied)
//   - apiBase: Initial API base URL; empty selects the default endpoint
//   - doer: HTTP transport; nil for the default client
//
// Returns:
//   - *SessionManager: Ready-to-use manager in the anonymous state
//   - error: ErrInvalidCountryCode or ErrInvalidLanguageCode
func NewSessionManager(creds Credentials, identity Identity, apiBase string, doer HTTPDoer) (*SessionManager, error) {
	identity.ApplyDefaults()
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if doer == nil {
		doer = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &SessionManager{
		creds:        creds,
		identity:     identity,
		http:         doer,
		logger:       noopLogger{},
		state:        StateAnonymous,
		apiBase:      trimBase(apiBase),
		trustedUntil: trustedTokenExpiry,
	}, nil
}

// SetLogger sets the logger for the session manager. The field is not
// guarded; call this during setup, before the first request.
func (m *SessionManager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetOnConnect sets a callback invoked when the session becomes
// authenticated. Emitted at most once per anonymous→authenticated
// transition.
func (m *SessionManager) SetOnConnect(callback func()) {
	m.callbackMu.Lock()
	m.onConnect = callback
	m.callbackMu.Unlock()
}

// SetOnClose sets a callback invoked when an authenticated session is
// dropped (401 observed or local expiry). Emitted at most once per
// transition back to anonymous.
func (m *SessionManager) SetOnClose(callback func()) {
	m.callbackMu.Lock()
	m.onClose = callback
	m.callbackMu.Unlock()
}

// Authenticate performs a login against the current API base.
//
// Outcomes:
//   - AuthOK: token stored, session authenticated, connect emitted.
//   - AuthSendVerifyCode: the account requires verification. The issued
//     token is kept (the verification endpoints need it), an email code
//     send has been triggered, and the session is awaiting 2FA.
//   - AuthRenew: the account's home domain differs from the configured
//     API base. The just-issued token is discarded, the base is switched,
//     and the caller must call Authenticate exactly once more. Never
//     looped automatically to avoid infinite redirection.
//   - AuthError: transport error or unexpected business code. No retry
//     is attempted here; retry policy belongs to the caller.
func (m *SessionManager) Authenticate(ctx context.Context) (AuthResult, error) {
	m.mu.Lock()
	prev := m.state
	m.state = StateAuthenticating
	m.mu.Unlock()

	res, err := m.login(ctx, "")
	if res == AuthError {
		m.mu.Lock()
		if m.state == StateAuthenticating {
			m.state = prev
		}
		m.mu.Unlock()
	}
	return res, err
}

// login submits the login request, optionally carrying a two-factor
// verification code, and applies the resulting session mutation.
func (m *SessionManager) login(ctx context.Context, verifyCode string) (AuthResult, error) {
	payload := map[string]any{
		"email":    m.creds.Username,
		"password": m.creds.Password,
	}
	if verifyCode != "" {
		payload["verify_code"] = verifyCode
	}

	env, status, err := m.post(ctx, PathLogin, payload, false)
	if err != nil {
		return AuthError, fmt.Errorf("login: %w", err)
	}
	if status != http.StatusOK {
		return AuthError, fmt.Errorf("%w: login status %d", ErrTransport, status)
	}

	if env.Code == CodeNeedVerifyCode {
		var data loginData
		if decodeErr := env.DecodeData(&data); decodeErr != nil {
			return AuthError, fmt.Errorf("login: %w", decodeErr)
		}

		// The token is stored even though the account is unverified:
		// the verification endpoints themselves require it.
		m.mu.Lock()
		m.token = data.AuthToken
		m.tokenExpiresAt = time.UnixMilli(data.TokenExpiresAt * millisPerSecond)
		m.state = StateAwaiting2FA
		m.mu.Unlock()

		if sendErr := m.SendVerifyCode(ctx, ChannelEmail); sendErr != nil {
			m.logger.Warn("verification code send failed", "error", sendErr)
		}
		m.logger.Info("account requires two-factor verification")
		return AuthSendVerifyCode, nil
	}

	if !env.OK() {
		return AuthError, fmt.Errorf("login: %w", env.Err())
	}

	var data loginData
	if decodeErr := env.DecodeData(&data); decodeErr != nil {
		return AuthError, fmt.Errorf("login: %w", decodeErr)
	}

	// Domain migration: the account lives on a different regional
	// endpoint. Operating against the wrong base silently returns wrong
	// data, so the just-issued token is discarded and the caller retries
	// once against the corrected base.
	if data.Domain != "" && data.Domain != hostOf(m.APIBase()) {
		next := "https://" + data.Domain
		m.mu.Lock()
		old := m.apiBase
		m.apiBase = next
		m.token = ""
		m.tokenExpiresAt = time.Time{}
		m.state = StateAnonymous
		m.mu.Unlock()

		m.logger.Info("api domain migration", "from", old, "to", next)
		return AuthRenew, nil
	}

	m.mu.Lock()
	wasConnected := m.state == StateAuthenticated || m.state == StateTrusted
	m.token = data.AuthToken
	m.tokenExpiresAt = time.UnixMilli(data.TokenExpiresAt * millisPerSecond)
	m.state = StateAuthenticated
	expiry := m.tokenExpiresAt
	m.mu.Unlock()

	m.logger.Info("authenticated", "token_expires_at", expiry.UTC())
	if !wasConnected {
		m.emitConnect()
	}
	return AuthOK, nil
}

// SendVerifyCode requests a one-time verification code be dispatched to
// the given channel. Each call requests a fresh code.
func (m *SessionManager) SendVerifyCode(ctx context.Context, channel VerifyChannel) error {
	env, status, err := m.post(ctx, PathSendVerifyCode, map[string]any{
		"message_type": int(channel),
	}, true)
	if err != nil {
		return fmt.Errorf("sending verify code: %w", err)
	}
	if status == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if err := env.Err(); err != nil {
		return fmt.Errorf("sending verify code: %w", err)
	}
	return nil
}

// ConfirmTwoFactor completes the two-factor elevation flow.
//
// It re-submits the login with the verification code, registers this
// device as trusted with the same code, then lists the account's trusted
// devices. If the current device appears in the listing as trusted, the
// token expiry is extended to the trusted sentinel (effectively
// non-expiring). A 401 at any step invalidates the session immediately.
func (m *SessionManager) ConfirmTwoFactor(ctx context.Context, code string) error {
	res, err := m.login(ctx, code)
	if err != nil {
		return fmt.Errorf("confirming verification code: %w", err)
	}
	if res != AuthOK {
		return fmt.Errorf("%w: login result %d", ErrVerificationFailed, res)
	}

	env, status, err := m.post(ctx, PathTrustDeviceAdd, map[string]any{
		"verify_code": code,
	}, true)
	if err != nil {
		return fmt.Errorf("adding trusted device: %w", err)
	}
	if status == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if err := env.Err(); err != nil {
		return fmt.Errorf("adding trusted device: %w", err)
	}

	devices, err := m.listTrustedDevices(ctx)
	if err != nil {
		return err
	}

	for _, d := range devices {
		if !d.IsCurrentDevice {
			continue
		}
		m.mu.Lock()
		m.tokenExpiresAt = m.trustedUntil
		m.state = StateTrusted
		m.mu.Unlock()
		m.logger.Info("device trusted, token extended", "device_id", d.DeviceID)
		break
	}
	return nil
}

// listTrustedDevices fetches the account's trusted-device listing.
func (m *SessionManager) listTrustedDevices(ctx context.Context) ([]TrustedDevice, error) {
	env, status, err := m.post(ctx, PathTrustDeviceList, map[string]any{
		"num":  100,
		"page": 0,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}
	if status == http.StatusUnauthorized {
		return nil, ErrNotAuthenticated
	}
	if err := env.Err(); err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}

	var data trustDeviceListData
	if err := env.DecodeData(&data); err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}
	return data.Devices, nil
}

// Invalidate clears the token and expiry and returns the session to the
// anonymous state. Idempotent. Emits the close callback when a token was
// actually dropped, so each 401 occurrence produces exactly one signal.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	hadToken := m.token != ""
	m.token = ""
	m.tokenExpiresAt = time.Time{}
	m.state = StateAnonymous
	m.mu.Unlock()

	if hadToken {
		m.logger.Info("session invalidated")
		m.emitClose()
	}
}

// IsExpired reports whether a token is held and its expiry is at or
// before now. A session with no token is not "expired", it is anonymous.
func (m *SessionManager) IsExpired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != "" && !m.tokenExpiresAt.After(now)
}

// Token returns the current bearer token, or "" when anonymous.
func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State returns the current session state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// APIBase returns the current API base URL. It changes only through
// domain migration.
func (m *SessionManager) APIBase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiBase
}

// Snapshot captures the persistable session fields so a caller can
// restore the session across restarts without re-authenticating.
type Snapshot struct {
	Token          string
	TokenExpiresAt time.Time
	APIBase        string
	TrustedUntil   time.Time
}

// Snapshot returns the current persistable session state.
func (m *SessionManager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Token:          m.token,
		TokenExpiresAt: m.tokenExpiresAt,
		APIBase:        m.apiBase,
		TrustedUntil:   m.trustedUntil,
	}
}

// Restore loads a previously captured snapshot. No callbacks are emitted;
// restoring is bookkeeping, not a lifecycle transition. An expired or
// empty token restores to the anonymous state.
func (m *SessionManager) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.APIBase != "" {
		m.apiBase = trimBase(s.APIBase)
	}
	if !s.TrustedUntil.IsZero() {
		m.trustedUntil = s.TrustedUntil
	}

	if s.Token == "" || !s.TokenExpiresAt.After(time.Now()) {
		m.token = ""
		m.tokenExpiresAt = time.Time{}
		m.state = StateAnonymous
		return
	}

	m.token = s.Token
	m.tokenExpiresAt = s.TokenExpiresAt
	if !s.TokenExpiresAt.Before(m.trustedUntil) {
		m.state = StateTrusted
	} else {
		m.state = StateAuthenticated
	}
}

// identityHeaders exposes the identity header bag to the dispatcher.
func (m *SessionManager) identityHeaders() map[string]string {
	return m.identity.headers()
}

// post issues a POST to the given path with the identity header bag and,
// when requested, the current token. Statuses below 500 resolve with a
// decoded envelope; network failures and 5xx return ErrTransport. A 401
// invalidates the session before returning.
func (m *SessionManager) post(ctx context.Context, path string, body any, withToken bool) (*Envelope, int, error) {
	m.mu.Lock()
	base := m.apiBase
	token := m.token
	m.mu.Unlock()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range m.identity.headers() {
		req.Header.Set(k, v)
	}
	if withToken && token != "" {
		req.Header.Set("x-auth-token", token)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		m.Invalidate()
	}

	var env Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("decoding response envelope: %w", err)
		}
	}
	return &env, resp.StatusCode, nil
}

// emitConnect invokes the connect callback if one is registered.
func (m *SessionManager) emitConnect() {
	m.callbackMu.RLock()
	callback := m.onConnect
	m.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// emitClose invokes the close callback if one is registered.
func (m *SessionManager) emitClose() {
	m.callbackMu.RLock()
	callback := m.onClose
	m.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// trimBase strips a trailing slash so path joins stay predictable.
func trimBase(base string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base
}

// hostOf extracts the host part of a base URL for domain comparison.
func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Host
}
