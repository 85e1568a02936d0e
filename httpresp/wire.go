package httpresp

import "encoding/json"

// ErrorData is the JSON shape attached to a synthesized JSON-RPC error's
// data field. The field names and types are a wire contract shared with
// clients in other languages; do not rename them.
type ErrorData struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	// Body is null on the wire when the response had no body.
	Body *string `json:"body"`
	// OriginalHTTPResponse is the discriminator clients test for. It is
	// always true when this payload is emitted.
	OriginalHTTPResponse bool `json:"originalHttpResponse"`
}

// WireData converts the descriptor to its synthesized-error payload:
// lowercased header names, multi-valued fields joined with ", ".
func (r *Response) WireData() ErrorData {
	d := ErrorData{
		Status:               r.status,
		StatusText:           r.statusText,
		Headers:              r.header.Flatten(),
		OriginalHTTPResponse: true,
	}
	if len(r.body) > 0 {
		s := string(r.body)
		d.Body = &s
	}
	return d
}

// ParseErrorData inspects a JSON-RPC error data payload and, when it is a
// well-formed ErrorData with the originalHttpResponse discriminator set to
// boolean true, returns it. Any malformation (absent discriminator, wrong
// types, non-object payload) returns ok=false; callers must then treat the
// error as an ordinary RPC error rather than partially reconstructing.
func ParseErrorData(raw json.RawMessage) (ErrorData, bool) {
	if len(raw) == 0 {
		return ErrorData{}, false
	}
	// First pass: confirm the discriminator is exactly boolean true without
	// letting a lossy decode of the other fields mask a type mismatch.
	var probe struct {
		Status               json.RawMessage `json:"status"`
		StatusText           json.RawMessage `json:"statusText"`
		Headers              json.RawMessage `json:"headers"`
		OriginalHTTPResponse json.RawMessage `json:"originalHttpResponse"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ErrorData{}, false
	}
	if string(probe.OriginalHTTPResponse) != "true" {
		return ErrorData{}, false
	}
	var d ErrorData
	if err := json.Unmarshal(raw, &d); err != nil {
		return ErrorData{}, false
	}
	if d.Status < 100 || d.Status > 599 {
		return ErrorData{}, false
	}
	if d.Headers == nil {
		d.Headers = map[string]string{}
	}
	return d, true
}
