package goRenew

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goRenew/internal/audit"
)

// AuditEvent is one security-relevant record emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs audit events through log/slog.
type SlogSink = audit.SlogSink

// MultiSink fans events out to several sinks.
type MultiSink = audit.MultiSink

// Audit event types.
const (
	AuditLoginSuccess        = audit.EventLoginSuccess
	AuditLoginFailure        = audit.EventLoginFailure
	AuditLoginRateLimited    = audit.EventLoginRateLimited
	AuditFederatedLogin      = audit.EventFederatedLogin
	AuditRefreshSuccess      = audit.EventRefreshSuccess
	AuditRefreshInvalid      = audit.EventRefreshInvalid
	AuditRefreshRateLimited  = audit.EventRefreshRateLimited
	AuditRefreshReuse        = audit.EventRefreshReuse
	AuditLogout              = audit.EventLogout
	AuditAntiForgeryRejected = audit.EventAntiForgeryRejected
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
