package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. Overlay-specific keys use the "overlay." prefix,
// transfer keys "transfer.", agent fabric keys "agent.".
const (
	// ========================================================================
	// Peer attributes
	// ========================================================================
	AttrPeerUsername = "peer.username"
	AttrPeerAddr     = "peer.address"

	// ========================================================================
	// Overlay session attributes
	// ========================================================================
	AttrServerAddr   = "overlay.server"
	AttrSessionState = "overlay.session_state"
	AttrSearchText   = "overlay.search_text"
	AttrSearchToken  = "overlay.search_token"
	AttrRoom         = "overlay.room"

	// ========================================================================
	// Transfer attributes
	// ========================================================================
	AttrTransferID    = "transfer.id"
	AttrDirection     = "transfer.direction"
	AttrFilename      = "transfer.filename"
	AttrSize          = "transfer.size"
	AttrOffset        = "transfer.offset"
	AttrTransferState = "transfer.state"
	AttrFailureKind   = "transfer.failure_kind"

	// ========================================================================
	// Agent fabric attributes
	// ========================================================================
	AttrAgentName    = "agent.name"
	AttrConnectionID = "agent.connection_id"
	AttrTicketKind   = "agent.ticket_kind"

	// ========================================================================
	// Shared-file index attributes
	// ========================================================================
	AttrSharePath  = "share.path"
	AttrShareFiles = "share.files"

	// ========================================================================
	// Operator attributes
	// ========================================================================
	AttrUsername = "user.name"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanSessionConnect = "session.connect"
	SpanSessionLogin   = "session.login"

	SpanTransferEnqueue = "transfer.enqueue"
	SpanTransferRun     = "transfer.run"
	SpanTransferCancel  = "transfer.cancel"

	SpanSearchBegin  = "search.begin"
	SpanSearchAnswer = "search.answer"

	SpanAgentFileInfo = "agent.file_info"
	SpanAgentGetFile  = "agent.get_file"
	SpanAgentCatalog  = "agent.catalog_sync"

	SpanShareRefill = "shares.refill"
)

// PeerUsername returns an attribute for a peer's overlay username.
func PeerUsername(name string) attribute.KeyValue {
	return attribute.String(AttrPeerUsername, name)
}

// PeerAddr returns an attribute for a peer's network address.
func PeerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddr, addr)
}

// ServerAddr returns an attribute for the overlay server address.
func ServerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrServerAddr, addr)
}

// TransferID returns an attribute for a transfer identifier.
func TransferID(id string) attribute.KeyValue {
	return attribute.String(AttrTransferID, id)
}

// Direction returns an attribute for a transfer direction.
func Direction(d string) attribute.KeyValue {
	return attribute.String(AttrDirection, d)
}

// Filename returns an attribute for a transferred file.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns an attribute for a byte size.
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// TransferState returns an attribute for a transfer lifecycle state.
func TransferState(s string) attribute.KeyValue {
	return attribute.String(AttrTransferState, s)
}

// SearchText returns an attribute for a search query.
func SearchText(text string) attribute.KeyValue {
	return attribute.String(AttrSearchText, text)
}

// SearchToken returns an attribute for a search token.
func SearchToken(token uint32) attribute.KeyValue {
	return attribute.Int64(AttrSearchToken, int64(token))
}

// AgentName returns an attribute for a share agent name.
func AgentName(name string) attribute.KeyValue {
	return attribute.String(AttrAgentName, name)
}

// SharePath returns an attribute for a shared directory path.
func SharePath(p string) attribute.KeyValue {
	return attribute.String(AttrSharePath, p)
}

// Username returns an attribute for an operator username.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// StartTransferSpan starts a span for a transfer operation.
func StartTransferSpan(ctx context.Context, name, id, direction string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{TransferID(id), Direction(direction)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartAgentSpan starts a span for an agent fabric operation.
func StartAgentSpan(ctx context.Context, name, agent string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{AgentName(agent)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
