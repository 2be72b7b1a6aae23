package fanout

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// InjectedFault marks a reply that a PostProcessor rejected on purpose. The
// reply is never emitted and its request stays pending.
type InjectedFault struct {
	Token string
}

func (f *InjectedFault) Error() string {
	return fmt.Sprintf("relayflow: injected fault for token %q", f.Token)
}

// Result is the outcome of post-processing one reply. Exactly one of Payload
// or Fault is meaningful.
type Result struct {
	Payload string
	Fault   *InjectedFault
}

// PostProcessor inspects a reply before it is emitted on the session stream.
type PostProcessor interface {
	Process(payload []byte) Result
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(payload []byte) Result

func (f PostProcessorFunc) Process(payload []byte) Result { return f(payload) }

// PassThrough emits every reply unchanged.
var PassThrough PostProcessor = PostProcessorFunc(func(payload []byte) Result {
	return Result{Payload: string(payload)}
})

// FaultInjector faults every reply that contains one of its tokens.
type FaultInjector struct {
	tokens []string
}

// NewFaultInjector trims the tokens and drops empty or repeated ones.
func NewFaultInjector(tokens []string) *FaultInjector {
	cleaned := lo.Uniq(lo.FilterMap(tokens, func(token string, _ int) (string, bool) {
		token = strings.TrimSpace(token)
		return token, token != ""
	}))
	return &FaultInjector{tokens: cleaned}
}

// ParseFaultTokens splits a comma separated token list.
func ParseFaultTokens(raw string) []string {
	return NewFaultInjector(strings.Split(raw, ",")).Tokens()
}

// Tokens returns the configured tokens.
func (f *FaultInjector) Tokens() []string {
	return append([]string(nil), f.tokens...)
}

func (f *FaultInjector) Process(payload []byte) Result {
	body := string(payload)
	if token, found := lo.Find(f.tokens, func(token string) bool { return strings.Contains(body, token) }); found {
		return Result{Fault: &InjectedFault{Token: token}}
	}
	return Result{Payload: body}
}
