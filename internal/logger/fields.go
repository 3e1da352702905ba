package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that transfers,
// sessions, and agent activity can be correlated in log aggregation.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Transfers
	// ========================================================================
	KeyTransferID  = "transfer_id" // Stable transfer identifier
	KeyDirection   = "direction"   // Transfer direction: download, upload
	KeyUsername    = "username"    // Counterparty username on the overlay
	KeyFilename    = "filename"    // Remote filename (overlay form)
	KeyLocalPath   = "local_path"  // Local filename (host form)
	KeySize        = "size"        // File size in bytes
	KeyBytes       = "bytes"       // Bytes transferred so far
	KeyState       = "state"       // Transfer or session state
	KeyPrevState   = "prev_state"  // State before a transition
	KeyGroup       = "group"       // User group name
	KeyPlace       = "place"       // Place in queue (1-based)
	KeySpeed       = "speed"       // Average speed in bytes/s
	KeyFailureKind = "failure"     // Failure classification for terminal states

	// ========================================================================
	// Overlay Session
	// ========================================================================
	KeyServer   = "server"    // Overlay server address
	KeyAttempt  = "attempt"   // Reconnect attempt number
	KeyDelay    = "delay"     // Backoff delay before the next attempt
	KeyReason   = "reason"    // Disconnect or rejection reason
	KeySearchID = "search_id" // Search identifier
	KeyToken    = "token"     // Overlay search token (numeric)

	// ========================================================================
	// Shared-File Index
	// ========================================================================
	KeyRoot        = "root"        // Share root absolute path
	KeyAlias       = "alias"       // Share root alias
	KeyDirectories = "directories" // Directory count
	KeyFiles       = "files"       // File count
	KeyProgress    = "progress"    // Scan fill progress 0..1
	KeyExcluded    = "excluded"    // Files excluded by filters

	// ========================================================================
	// Agent Fabric
	// ========================================================================
	KeyAgent        = "agent"         // Agent name
	KeyConnectionID = "connection_id" // Agent connection identifier
	KeyRequestID    = "request_id"    // RPC request identifier
	KeyRemoteAddr   = "remote_addr"   // Remote address of a connection

	// ========================================================================
	// HTTP API
	// ========================================================================
	KeyClientIP = "client_ip" // API client IP address
	KeyMethod   = "method"    // HTTP method
	KeyPath     = "path"      // HTTP path or file path
	KeyStatus   = "status"    // HTTP status code

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCount      = "count"       // Generic count
	KeyOperation  = "operation"   // Sub-operation name
	KeyComponent  = "component"   // Emitting component name
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// TransferID returns a slog.Attr for a transfer identifier
func TransferID(id string) slog.Attr {
	return slog.String(KeyTransferID, id)
}

// Direction returns a slog.Attr for a transfer direction
func Direction(d string) slog.Attr {
	return slog.String(KeyDirection, d)
}

// Username returns a slog.Attr for a counterparty username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Filename returns a slog.Attr for a remote filename
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// LocalPath returns a slog.Attr for a local file path
func LocalPath(p string) slog.Attr {
	return slog.String(KeyLocalPath, p)
}

// Size returns a slog.Attr for a file size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Bytes returns a slog.Attr for bytes transferred
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// State returns a slog.Attr for a state name
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// PrevState returns a slog.Attr for the state before a transition
func PrevState(s string) slog.Attr {
	return slog.String(KeyPrevState, s)
}

// Group returns a slog.Attr for a user group name
func Group(name string) slog.Attr {
	return slog.String(KeyGroup, name)
}

// Place returns a slog.Attr for a queue position
func Place(p int) slog.Attr {
	return slog.Int(KeyPlace, p)
}

// Speed returns a slog.Attr for an average speed in bytes/s
func Speed(bps float64) slog.Attr {
	return slog.Float64(KeySpeed, bps)
}

// FailureKind returns a slog.Attr for a terminal failure classification
func FailureKind(kind string) slog.Attr {
	return slog.String(KeyFailureKind, kind)
}

// Server returns a slog.Attr for the overlay server address
func Server(addr string) slog.Attr {
	return slog.String(KeyServer, addr)
}

// Attempt returns a slog.Attr for a reconnect attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Delay returns a slog.Attr for a backoff delay
func Delay(d any) slog.Attr {
	return slog.Any(KeyDelay, d)
}

// Reason returns a slog.Attr for a disconnect or rejection reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Root returns a slog.Attr for a share root path
func Root(p string) slog.Attr {
	return slog.String(KeyRoot, p)
}

// Alias returns a slog.Attr for a share root alias
func Alias(a string) slog.Attr {
	return slog.String(KeyAlias, a)
}

// Directories returns a slog.Attr for a directory count
func Directories(n int) slog.Attr {
	return slog.Int(KeyDirectories, n)
}

// Files returns a slog.Attr for a file count
func Files(n int) slog.Attr {
	return slog.Int(KeyFiles, n)
}

// Progress returns a slog.Attr for scan fill progress
func Progress(p float64) slog.Attr {
	return slog.Float64(KeyProgress, p)
}

// Agent returns a slog.Attr for an agent name
func Agent(name string) slog.Attr {
	return slog.String(KeyAgent, name)
}

// ConnectionID returns a slog.Attr for a connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// RequestID returns a slog.Attr for an RPC request identifier
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// RemoteAddr returns a slog.Attr for a remote connection address
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// ClientIP returns a slog.Attr for an API client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for an HTTP or file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Count returns a slog.Attr for a generic count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Operation returns a slog.Attr for a sub-operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Component returns a slog.Attr for an emitting component name
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}
