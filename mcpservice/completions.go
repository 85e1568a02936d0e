package mcpservice

import (
	"context"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

// CompletionsFunc adapts a function to CompletionsCapability.
type CompletionsFunc func(ctx context.Context, session sessions.Session, req *mcp.CompleteRequest) (*mcp.CompleteResult, error)

func (f CompletionsFunc) Complete(ctx context.Context, session sessions.Session, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return f(ctx, session, req)
}

// StaticCompletions returns a CompletionsCapability that serves suggestions
// from a fixed map keyed by argument name. Values are prefix-filtered by the
// requested argument value.
func StaticCompletions(values map[string][]string) CompletionsCapability {
	return CompletionsFunc(func(ctx context.Context, session sessions.Session, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
		var out []string
		for _, v := range values[req.Argument.Name] {
			if req.Argument.Value == "" || hasPrefixFold(v, req.Argument.Value) {
				out = append(out, v)
			}
		}
		if out == nil {
			out = []string{}
		}
		return &mcp.CompleteResult{Completion: mcp.Completion{Values: out, Total: len(out)}}, nil
	})
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
