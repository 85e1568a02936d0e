package httpresp

import (
	"reflect"
	"testing"
)

func TestHeaderAddPreservesOrderAndMultiplicity(t *testing.T) {
	h := &Header{}
	h.Add("X-Custom", "a")
	h.Add("Content-Type", "text/plain")
	h.Add("X-Custom", "b")
	h.Add("x-custom", "c")

	if got := h.Names(); !reflect.DeepEqual(got, []string{"X-Custom", "Content-Type"}) {
		t.Fatalf("unexpected name order: got %v", got)
	}
	if got := h.Values("X-CUSTOM"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected values: got %v", got)
	}
	if got := h.Get("x-custom"); got != "a" {
		t.Fatalf("Get: want %q got %q", "a", got)
	}
}

func TestHeaderLookupIsCaseInsensitive(t *testing.T) {
	h := NewHeader("WWW-Authenticate", `Bearer realm="mcp"`)
	if !h.Has("www-authenticate") {
		t.Fatal("expected lowercase lookup to hit")
	}
	if !h.Has("WWW-AUTHENTICATE") {
		t.Fatal("expected uppercase lookup to hit")
	}
	if got := h.Names()[0]; got != "WWW-Authenticate" {
		t.Fatalf("original casing lost: got %q", got)
	}
}

func TestHeaderSetReplaces(t *testing.T) {
	h := NewHeader("X-A", "1", "X-A", "2")
	h.Set("x-a", "3")
	if got := h.Values("X-A"); !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("Set should replace all values: got %v", got)
	}
	if got := h.Len(); got != 1 {
		t.Fatalf("want 1 name, got %d", got)
	}
}

func TestHeaderDel(t *testing.T) {
	h := NewHeader("X-A", "1", "X-B", "2")
	h.Del("x-a")
	if h.Has("X-A") {
		t.Fatal("X-A should be gone")
	}
	if got := h.Names(); !reflect.DeepEqual(got, []string{"X-B"}) {
		t.Fatalf("unexpected names after Del: got %v", got)
	}
}

func TestHeaderFlatten(t *testing.T) {
	h := &Header{}
	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")
	h.Add("X-Custom", "c")
	h.Add("WWW-Authenticate", `Bearer realm="a"`)
	h.Add("WWW-Authenticate", `Basic realm="b"`)

	got := h.Flatten()
	want := map[string]string{
		"x-custom":         "a, b, c",
		"www-authenticate": `Bearer realm="a", Basic realm="b"`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten mismatch:\nwant %v\ngot  %v", want, got)
	}
}

func TestHeaderCloneIsIndependent(t *testing.T) {
	h := NewHeader("X-A", "1")
	c := h.Clone()
	c.Add("X-A", "2")
	if got := len(h.Values("X-A")); got != 1 {
		t.Fatalf("clone mutation leaked into original: %d values", got)
	}
}

func TestNilHeaderIsSafeToRead(t *testing.T) {
	var h *Header
	if h.Get("x") != "" || h.Values("x") != nil || h.Has("x") || h.Len() != 0 {
		t.Fatal("nil Header reads should be zero values")
	}
	if got := h.Flatten(); len(got) != 0 {
		t.Fatalf("nil Flatten should be empty, got %v", got)
	}
	if c := h.Clone(); c == nil {
		t.Fatal("Clone of nil should be usable")
	}
}
