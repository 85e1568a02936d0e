package httpresp

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestResponseAsError(t *testing.T) {
	resp := New(401,
		WithStatusText("Unauthorized"),
		WithHeader("WWW-Authenticate", `Bearer realm="mcp"`),
		WithBody([]byte("auth required")),
	)

	var err error = fmt.Errorf("tool failed: %w", resp)
	var got *Response
	if !errors.As(err, &got) {
		t.Fatal("errors.As should find the descriptor through wrapping")
	}
	if got.Status() != 401 || got.StatusText() != "Unauthorized" {
		t.Fatalf("unexpected status: %d %q", got.Status(), got.StatusText())
	}
	if want := "HTTP 401: Unauthorized"; got.Error() != want {
		t.Fatalf("Error(): want %q got %q", want, got.Error())
	}
}

func TestErrorMessageEmptyStatusText(t *testing.T) {
	if got, want := ErrorMessage(401, ""), "HTTP 401: "; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestResponseAccessorsCopy(t *testing.T) {
	resp := New(503, WithHeader("Retry-After", "30"), WithBody([]byte("busy")))

	h := resp.Header()
	h.Add("Retry-After", "60")
	if got := resp.Header().Values("Retry-After"); !reflect.DeepEqual(got, []string{"30"}) {
		t.Fatalf("Header() must return a copy: got %v", got)
	}

	b := resp.Body()
	b[0] = 'B'
	if string(resp.Body()) != "busy" {
		t.Fatal("Body() must return a copy")
	}
}

func TestWithJSONBodySetsContentType(t *testing.T) {
	resp := New(429, WithJSONBody(map[string]any{"retry": true}))
	if got := resp.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("want application/json, got %q", got)
	}
	var v map[string]any
	if err := json.Unmarshal(resp.Body(), &v); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}

	// Explicit Content-Type wins over the JSON default.
	resp = New(429,
		WithHeader("Content-Type", "application/problem+json"),
		WithJSONBody(map[string]any{}),
	)
	if got := resp.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("explicit content type clobbered: got %q", got)
	}
}

func TestValidStatus(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   bool
	}{
		{100, true}, {200, true}, {599, true},
		{99, false}, {600, false}, {0, false}, {-1, false},
	} {
		if got := New(tc.status).ValidStatus(); got != tc.want {
			t.Fatalf("ValidStatus(%d): want %v got %v", tc.status, tc.want, got)
		}
	}
}
