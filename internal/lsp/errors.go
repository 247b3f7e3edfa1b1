package lsp

import "errors"

var (
	// ErrNoServer indicates no language server is configured for a language.
	ErrNoServer = errors.New("lsp: no language server configured")

	// ErrNoLanguage indicates a file has no recognized language identifier.
	ErrNoLanguage = errors.New("lsp: no language identifier for file")

	// ErrNotAcquired indicates Release was called without a matching prior
	// Acquire. This is a session-lifecycle bug and is surfaced loudly
	// instead of being absorbed.
	ErrNotAcquired = errors.New("lsp: release without matching acquire")

	// ErrConnClosed indicates an operation on a torn-down connection.
	ErrConnClosed = errors.New("lsp: connection closed")

	// ErrNotReady indicates a request was made before the initialize
	// handshake completed.
	ErrNotReady = errors.New("lsp: connection not ready")
)
