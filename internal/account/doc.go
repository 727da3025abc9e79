// Package account wraps the remaining account-scoped endpoints: pending
// invites, cipher keys and push-token registration. Structurally these
// are plain CRUD calls over the request dispatcher with no state of
// their own.
package account
