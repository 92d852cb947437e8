package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

const auditEventVersion = 1

var ErrInvalidAuditEvent = errors.New("invalid audit event")

// AuditInput is what a handler knows about a security-relevant action:
// registrations, logins, role changes and account deactivation.
type AuditInput struct {
	EventName   string
	ActorUserID string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

// AuditEvent is the record shipped to the log pipeline under the "audit" group.
type AuditEvent struct {
	EventVersion int    `json:"event_version"`
	EventName    string `json:"event_name"`
	ActorUserID  string `json:"actor_user_id"`
	ActorIP      string `json:"actor_ip"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	RequestID    string `json:"request_id"`
	TraceID      string `json:"trace_id,omitempty"`
	TS           string `json:"ts"`
}

func BuildAuditEvent(r *http.Request, in AuditInput) AuditEvent {
	ev := AuditEvent{
		EventVersion: auditEventVersion,
		EventName:    in.EventName,
		ActorUserID:  orElse(in.ActorUserID, "anonymous"),
		ActorIP:      remoteHost(r.RemoteAddr),
		TargetType:   in.TargetType,
		TargetID:     orElse(in.TargetID, "none"),
		Action:       in.Action,
		Outcome:      in.Outcome,
		Reason:       orElse(in.Reason, "none"),
		RequestID:    orElse(middleware.GetReqID(r.Context()), orElse(r.Header.Get(middleware.RequestIDHeader), "unknown")),
		TS:           time.Now().UTC().Format(time.RFC3339),
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		ev.TraceID = sc.TraceID().String()
	}
	return ev
}

func (e AuditEvent) fields() []slog.Attr {
	return []slog.Attr{
		slog.String("event_name", e.EventName),
		slog.String("actor_user_id", e.ActorUserID),
		slog.String("actor_ip", e.ActorIP),
		slog.String("target_type", e.TargetType),
		slog.String("target_id", e.TargetID),
		slog.String("action", e.Action),
		slog.String("outcome", e.Outcome),
		slog.String("reason", e.Reason),
		slog.String("request_id", e.RequestID),
		slog.String("ts", e.TS),
	}
}

// Validate reports every blank field at once.
func (e AuditEvent) Validate() error {
	var missing []string
	if e.EventVersion != auditEventVersion {
		missing = append(missing, "event_version")
	}
	for _, f := range e.fields() {
		if strings.TrimSpace(f.Value.String()) == "" {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidAuditEvent, strings.Join(missing, ", "))
	}
	return nil
}

// Audit logs the event. A malformed event is logged at warn and dropped; the
// request it describes still succeeds.
func Audit(r *http.Request, in AuditInput) {
	ev := BuildAuditEvent(r, in)
	logger := NewLogger()
	if err := ev.Validate(); err != nil {
		logger.WarnContext(r.Context(), "audit event rejected", "event_name", ev.EventName, "error", err)
		return
	}
	attrs := append([]slog.Attr{slog.Int("event_version", ev.EventVersion)}, ev.fields()...)
	logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", slog.Attr{Key: "audit", Value: slog.GroupValue(attrs...)})
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return orElse(host, "unknown")
}

func orElse(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
