package mcpservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcpwire/mcpwire/mcp"
	"github.com/mcpwire/mcpwire/sessions"
)

type testSession struct{ id string }

func (s testSession) SessionID() string       { return s.id }
func (s testSession) UserID() string          { return "test-user" }
func (s testSession) ProtocolVersion() string { return mcp.LatestProtocolVersion }

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=Text to echo back"`
	Repeat  int    `json:"repeat,omitempty"`
}

func TestNewToolSchemaReflection(t *testing.T) {
	tool := NewTool("echo", func(ctx context.Context, session sessions.Session, args echoArgs) (*mcp.CallToolResult, error) {
		return TextResult(args.Message), nil
	}, WithToolDescription("Echoes a message"))

	d := tool.Descriptor
	if d.Name != "echo" {
		t.Fatalf("want name echo, got %q", d.Name)
	}
	if d.Description != "Echoes a message" {
		t.Fatalf("want description set, got %q", d.Description)
	}
	if d.InputSchema.Type != "object" {
		t.Fatalf("want object schema, got %q", d.InputSchema.Type)
	}
	if d.InputSchema.AdditionalProperties {
		t.Fatalf("want additionalProperties=false by default")
	}
	msg, ok := d.InputSchema.Properties["message"]
	if !ok {
		t.Fatalf("want message property in schema, got %v", d.InputSchema.Properties)
	}
	if msg.Type != "string" {
		t.Fatalf("want string message property, got %q", msg.Type)
	}
	if msg.Description != "Text to echo back" {
		t.Fatalf("want property description, got %q", msg.Description)
	}
	if rep, ok := d.InputSchema.Properties["repeat"]; !ok || rep.Type != "integer" {
		t.Fatalf("want integer repeat property, got %+v ok=%v", rep, ok)
	}
	foundRequired := false
	for _, r := range d.InputSchema.Required {
		if r == "message" {
			foundRequired = true
		}
	}
	if !foundRequired {
		t.Fatalf("want message in required, got %v", d.InputSchema.Required)
	}
}

func TestNewToolDecodesArguments(t *testing.T) {
	tool := NewTool("echo", func(ctx context.Context, session sessions.Session, args echoArgs) (*mcp.CallToolResult, error) {
		return TextResult(args.Message), nil
	})

	sess := testSession{id: "s1"}

	res, err := tool.Handler(context.Background(), sess, &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("want success, got error result: %+v", res)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "hi" {
		t.Fatalf("want echoed text, got %+v", res.Content)
	}

	// Unknown fields are rejected as a tool error, not a protocol error.
	res, err = tool.Handler(context.Background(), sess, &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi","bogus":1}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("want IsError for unknown field, got %+v", res)
	}
}

func TestNewToolAllowAdditionalProperties(t *testing.T) {
	tool := NewTool("echo", func(ctx context.Context, session sessions.Session, args echoArgs) (*mcp.CallToolResult, error) {
		return TextResult(args.Message), nil
	}, WithToolAllowAdditionalProperties(true))

	if !tool.Descriptor.InputSchema.AdditionalProperties {
		t.Fatalf("want additionalProperties=true in schema")
	}
	res, err := tool.Handler(context.Background(), testSession{id: "s1"}, &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi","extra":true}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("want unknown fields tolerated, got %+v", res)
	}
}

func TestNewToolWithOutput(t *testing.T) {
	type sumOut struct {
		Total int `json:"total"`
	}
	type sumArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	tool := NewToolWithOutput("sum", func(ctx context.Context, session sessions.Session, args sumArgs) (sumOut, error) {
		return sumOut{Total: args.A + args.B}, nil
	})

	if tool.Descriptor.OutputSchema == nil {
		t.Fatalf("want output schema advertised")
	}
	if p, ok := tool.Descriptor.OutputSchema.Properties["total"]; !ok || p.Type != "integer" {
		t.Fatalf("want integer total in output schema, got %+v ok=%v", p, ok)
	}

	res, err := tool.Handler(context.Background(), testSession{id: "s1"}, &mcp.CallToolRequestReceived{
		Name:      "sum",
		Arguments: json.RawMessage(`{"a":2,"b":3}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.StructuredContent["total"]; got != float64(5) {
		t.Fatalf("want total 5, got %v", got)
	}
}

func TestToolsContainerPagination(t *testing.T) {
	defs := make([]StaticTool, 0, 5)
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		n := n
		defs = append(defs, StaticTool{
			Descriptor: mcp.Tool{Name: n, InputSchema: mcp.ToolInputSchema{Type: "object"}},
			Handler: func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
				return TextResult(n), nil
			},
		})
	}
	tc := NewToolsContainer(defs...)
	tc.SetPageSize(2)
	sess := testSession{id: "s1"}

	var got []string
	var cursor *string
	for {
		page, err := tc.ListTools(context.Background(), sess, cursor)
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		for _, tool := range page.Items {
			got = append(got, tool.Name)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if len(got) != len(names) {
		t.Fatalf("want %d tools across pages, got %d (%v)", len(names), len(got), got)
	}
	for i, n := range names {
		if got[i] != n {
			t.Fatalf("want order preserved, got %v", got)
		}
	}

	// Bad cursors restart from the beginning.
	bad := "not-a-number"
	page, err := tc.ListTools(context.Background(), sess, &bad)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "a" {
		t.Fatalf("want restart on bad cursor, got %+v", page.Items)
	}
}

func TestToolsContainerCallTool(t *testing.T) {
	tc := NewToolsContainer(NewTool("greet", func(ctx context.Context, session sessions.Session, args struct{}) (*mcp.CallToolResult, error) {
		return TextResult("hello"), nil
	}))
	sess := testSession{id: "s1"}

	res, err := tc.CallTool(context.Background(), sess, &mcp.CallToolRequestReceived{Name: "greet"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "hello" {
		t.Fatalf("want hello, got %+v", res.Content)
	}

	if _, err := tc.CallTool(context.Background(), sess, &mcp.CallToolRequestReceived{Name: "missing"}); err == nil {
		t.Fatalf("want error for unknown tool")
	}
	if _, err := tc.CallTool(context.Background(), sess, &mcp.CallToolRequestReceived{}); err == nil {
		t.Fatalf("want error for missing name")
	}
}

func TestToolsContainerMutationNotifies(t *testing.T) {
	tc := NewToolsContainer()
	ch := tc.Subscriber()
	drain(ch)

	added := tc.Add(context.Background(), NewTool("one", func(ctx context.Context, session sessions.Session, args struct{}) (*mcp.CallToolResult, error) {
		return TextResult("one"), nil
	}))
	if !added {
		t.Fatalf("want Add to succeed")
	}
	waitSignal(t, ch)

	// Duplicate names are rejected and do not notify.
	if tc.Add(context.Background(), StaticTool{Descriptor: mcp.Tool{Name: "one"}}) {
		t.Fatalf("want duplicate Add rejected")
	}

	if !tc.Remove(context.Background(), "one") {
		t.Fatalf("want Remove to succeed")
	}
	waitSignal(t, ch)
	if tc.Remove(context.Background(), "one") {
		t.Fatalf("want second Remove to report false")
	}
}
