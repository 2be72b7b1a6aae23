// Package directives parses the load-test headers that ask a component to
// stall before or after doing its work.
//
// A directive is any header whose key starts with "load". The key names the
// role it applies to and optionally a phase, for example
// "load-gateway-before: 150" or "load-worker: 300". The value is a delay in
// milliseconds. Directive headers are forwarded verbatim on every publish made
// on behalf of the request that carried them.
package directives

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"

	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
)

// Prefix marks a header as a directive. Matching is case-insensitive.
const Prefix = "load"

// Phases recognised in directive keys.
const (
	PhaseAny    = ""
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// Directive is one parsed delay request.
type Directive struct {
	Key   string
	Role  string
	Phase string
	Delay time.Duration
}

// Set holds the directives of one message or HTTP request, ordered by key.
type Set []Directive

// IsDirective reports whether key carries the directive prefix.
func IsDirective(key string) bool {
	return len(key) >= len(Prefix) && strings.EqualFold(key[:len(Prefix)], Prefix)
}

// Parse extracts the directives from headers. Entries with a value that is not
// a non-negative integer are dropped.
func Parse(headers map[string]string) Set {
	keys := lo.Filter(lo.Keys(headers), func(k string, _ int) bool { return IsDirective(k) })
	sort.Strings(keys)

	set := make(Set, 0, len(keys))
	for _, key := range keys {
		ms, err := strconv.Atoi(strings.TrimSpace(headers[key]))
		if err != nil || ms < 0 {
			continue
		}
		role, phase := splitKey(key)
		set = append(set, Directive{
			Key:   key,
			Role:  role,
			Phase: phase,
			Delay: time.Duration(ms) * time.Millisecond,
		})
	}
	return set
}

func splitKey(key string) (role, phase string) {
	rest := strings.ToLower(key[len(Prefix):])
	tokens := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		if token == PhaseBefore || token == PhaseAfter {
			phase = token
		}
	}
	tokens = lo.Without(tokens, PhaseBefore, PhaseAfter)
	return strings.Join(tokens, "-"), phase
}

// Delay returns the delay requested for role in phase. The key must contain
// the role name; PhaseAny accepts directives of every phase. When several
// directives match, the first by key wins.
func (s Set) Delay(role, phase string) time.Duration {
	role = strings.ToLower(role)
	for _, d := range s {
		key := strings.ToLower(d.Key)
		if role != "" && !strings.Contains(key, role) {
			continue
		}
		if phase != PhaseAny && !strings.Contains(key, phase) {
			continue
		}
		return d.Delay
	}
	return 0
}

// FromHTTP copies the directive headers of an HTTP request, taking the first
// value of each. Keys are lower-cased, the form HTTP/2 sends on the wire,
// undoing net/http canonicalisation.
func FromHTTP(header http.Header) metadatapkg.Metadata {
	out := metadatapkg.Metadata{}
	for key, values := range header {
		if IsDirective(key) && len(values) > 0 {
			out[strings.ToLower(key)] = values[0]
		}
	}
	return out
}

// FromHeaders returns the directive entries of a metadata map.
func FromHeaders(headers map[string]string) metadatapkg.Metadata {
	return metadatapkg.Metadata(headers).WithPrefix(Prefix)
}

type forwardedKey struct{}

// WithForwarded stores the directive headers that every publish made with ctx
// must carry.
func WithForwarded(ctx context.Context, md metadatapkg.Metadata) context.Context {
	if len(md) == 0 {
		return ctx
	}
	return context.WithValue(ctx, forwardedKey{}, md.Clone())
}

// FromContext returns a copy of the forwarded directive headers, or an empty
// map when none were stored.
func FromContext(ctx context.Context) metadatapkg.Metadata {
	if ctx == nil {
		return metadatapkg.Metadata{}
	}
	md, ok := ctx.Value(forwardedKey{}).(metadatapkg.Metadata)
	if !ok {
		return metadatapkg.Metadata{}
	}
	return md.Clone()
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
