// Package cloud implements the authenticated session and request pipeline
// for the vendor's device-management API.
//
// Two types cooperate:
//
//	┌──────────────────┐    ┌──────────────────┐
//	│    Dispatcher    │───▶│  SessionManager  │
//	│  (dispatch.go)   │    │   (session.go)   │
//	│                  │    │                  │
//	│ • pre-flight     │    │ • credentials    │
//	│   session check  │    │ • token + expiry │
//	│ • 401 handling   │    │ • 2FA elevation  │
//	│ • 5xx → error    │    │ • domain switch  │
//	└──────────────────┘    └──────────────────┘
//
// SessionManager is the single source of truth for authentication state. It
// executes the login protocol, including two-factor "trusted device"
// elevation and server-directed migration to the account's home API domain.
//
// Dispatcher is the chokepoint every API call passes through. It guarantees
// a request never knowingly goes out with an expired token, and that any
// observed 401 invalidates the session before the next call. Concurrent
// callers that race on a missing token share one in-flight authentication
// via singleflight.
//
// Every response body uses the envelope {code, msg, data}; code 0 is the
// success sentinel and any other code is a business error carried as data,
// not as a transport failure. Statuses below 500 resolve as data so 4xx
// business errors stay inspectable; 500 and above are transport errors.
package cloud
