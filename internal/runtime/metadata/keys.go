package metadata

import "strings"

// Reserved header keys carried on every request and reply.
const (
	CorrelationIDKey = "correlation_id"
	ReplyToKey       = "reply_to"
	TraceParentKey   = "traceparent"
	TraceStateKey    = "tracestate"
	BaggageKey       = "baggage"
)

// CorrelationID returns the correlation id header, if any.
func (m Metadata) CorrelationID() string {
	return m[CorrelationIDKey]
}

// ReplyTo returns the reply destination header, if any.
func (m Metadata) ReplyTo() string {
	return m[ReplyToKey]
}

// WithPrefix returns the entries whose key starts with prefix, compared
// case-insensitively. Keys and values are copied verbatim.
func (m Metadata) WithPrefix(prefix string) Metadata {
	out := Metadata{}
	for k, v := range m {
		if len(k) >= len(prefix) && strings.EqualFold(k[:len(prefix)], prefix) {
			out[k] = v
		}
	}
	return out
}
