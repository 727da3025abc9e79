// Package logging wraps log/slog for HearthLink. Every entry carries
// the service name and version; subsystems add a component field via
// With.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// JSON is the production format; text is for watching the daemon in a
// terminal.
//
// # Security
//
// Never log secrets. Session tokens, passwords, and the 2FA verify
// code must not appear in output; log their presence, not their value.
package logging
