package agentrt

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ToolInvocation is one <invoke> parsed out of a <tool_calls> envelope.
type ToolInvocation struct {
	Name      string
	Arguments map[string]any
}

// parserState is the pushdown automaton's state while scanning the
// content stream for embedded <tool_calls> envelopes.
type parserState int

const (
	stateOut parserState = iota
	stateInToolCalls
)

const (
	openTag  = "<tool_calls>"
	closeTag = "</tool_calls>"
)

var invokeRe = regexp.MustCompile(`(?s)<invoke\s+name="([^"]*)">(.*?)</invoke>`)
var paramRe = regexp.MustCompile(`<parameter\s+name="([^"]*)"\s+value="(.*?)"\s*/>`)

// ToolCallParser incrementally scans a content stream for <tool_calls>
// envelopes, emitting plain content directly and buffering only what
// falls between the open and close tags. It implements the streaming
// parser design note: states {OUT, IN_TOOLCALLS}, with <invoke>/
// <parameter> parsed in one pass once the envelope closes (IN_INVOKE/
// IN_PARAM collapse into a single regex pass over the buffered span,
// since providers emit the envelope compactly rather than token by
// token inside it).
type ToolCallParser struct {
	state parserState
	buf   strings.Builder
}

// Feed appends chunk to the parser and returns the plain-text portion
// that should be emitted as Content immediately (text outside any
// <tool_calls> envelope), plus any invocations found from envelopes
// that closed during this feed.
func (p *ToolCallParser) Feed(chunk string) (plain string, invocations []ToolInvocation) {
	remaining := chunk
	for len(remaining) > 0 {
		switch p.state {
		case stateOut:
			idx := strings.Index(remaining, openTag)
			if idx < 0 {
				plain += remaining
				remaining = ""
				continue
			}
			plain += remaining[:idx]
			remaining = remaining[idx+len(openTag):]
			p.state = stateInToolCalls
			p.buf.Reset()
		case stateInToolCalls:
			idx := strings.Index(remaining, closeTag)
			if idx < 0 {
				p.buf.WriteString(remaining)
				remaining = ""
				continue
			}
			p.buf.WriteString(remaining[:idx])
			remaining = remaining[idx+len(closeTag):]
			invocations = append(invocations, parseInvokes(p.buf.String())...)
			p.buf.Reset()
			p.state = stateOut
		}
	}
	return plain, invocations
}

// Pending reports whether the parser is mid-envelope (buffering inside
// <tool_calls>) — true means the stream ended without a matching close
// tag, which the runtime treats as a malformed-envelope warning rather
// than silently dropping the buffered text.
func (p *ToolCallParser) Pending() bool {
	return p.state == stateInToolCalls
}

func parseInvokes(body string) []ToolInvocation {
	var out []ToolInvocation
	for _, m := range invokeRe.FindAllStringSubmatch(body, -1) {
		name, paramsBody := m[1], m[2]
		args := map[string]any{}
		for _, pm := range paramRe.FindAllStringSubmatch(paramsBody, -1) {
			key, val := pm[1], pm[2]
			args[key] = decodeParamValue(val)
		}
		out = append(out, ToolInvocation{Name: name, Arguments: args})
	}
	return out
}

// decodeParamValue parses val as JSON when it is valid JSON, else
// returns it as a plain string, per the envelope's VAL semantics.
func decodeParamValue(val string) any {
	var decoded any
	if err := json.Unmarshal([]byte(val), &decoded); err == nil {
		return decoded
	}
	return val
}
