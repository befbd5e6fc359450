package responder

import (
	"errors"
	"testing"
)

const fallback = "fallback"

func TestDecodeNormalizeShapes(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		shape Shape
		text  string
		html  string // empty means no fragment
	}{
		{"object with html", `{"output":"hi","html_code":"<b>x</b>"}`, ShapeObject, "hi", "<b>x</b>"},
		{"object with null html", `{"output":"hi","html_code":null}`, ShapeObject, "hi", ""},
		{"object with object output", `{"output":{"a":1},"html_code":""}`, ShapeObject, "{\n  \"a\": 1\n}", ""},
		{"array nested output", `[{"output":{"output":"hi"}}]`, ShapeArray, "hi", ""},
		{"array nested html", `[{"output":{"output":"hi","html_code":"<p>"}}]`, ShapeArray, "hi", "<p>"},
		{"array string output", `[{"output":"plain","html_code":"<i>ignored</i>"}]`, ShapeArray, "plain", ""},
		{"array nested falsy output", `[{"output":{"output":"","html_code":"<p>"}}]`, ShapeArray, fallback, "<p>"},
		{"array falsy output", `[{"output":0}]`, ShapeEmpty, fallback, ""},
		{"array of strings", `["x"]`, ShapeEmpty, fallback, ""},
		{"empty array", `[]`, ShapeEmpty, fallback, ""},
		{"output only string", `{"output":"hello"}`, ShapeOutputOnly, "hello", ""},
		{"output only object", `{"output":{"output":"deep","html_code":"<div/>"}}`, ShapeOutputOnly, "deep", "<div/>"},
		{"output only number", `{"output":42}`, ShapeOutputOnly, fallback, ""},
		{"bare string", `"hi"`, ShapeString, "hi", ""},
		{"empty string", `""`, ShapeString, fallback, ""},
		{"empty object", `{}`, ShapeEmpty, fallback, ""},
		{"null", `null`, ShapeEmpty, fallback, ""},
		{"number", `7`, ShapeEmpty, fallback, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := Decode([]byte(tc.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if reply.Shape != tc.shape {
				t.Fatalf("expected shape %s, got %s", tc.shape, reply.Shape)
			}
			if got := Normalize(reply, fallback); got != tc.text {
				t.Fatalf("expected text %q, got %q", tc.text, got)
			}
			switch {
			case tc.html == "" && reply.HTML != nil:
				t.Fatalf("expected no html, got %q", *reply.HTML)
			case tc.html != "" && (reply.HTML == nil || *reply.HTML != tc.html):
				t.Fatalf("expected html %q, got %v", tc.html, reply.HTML)
			}
		})
	}
}

func TestNormalizeScalarOutput(t *testing.T) {
	reply, err := Decode([]byte(`{"output":true,"html_code":null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := Normalize(reply, fallback); got != "true" {
		t.Fatalf("expected scalar json text, got %q", got)
	}
	reply, _ = Decode([]byte(`{"output":null,"html_code":null}`))
	if got := Normalize(reply, fallback); got != fallback {
		t.Fatalf("expected fallback for null output, got %q", got)
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`<html>oops</html>`)); !errors.Is(err, ErrInvalidReply) {
		t.Fatalf("expected ErrInvalidReply, got %v", err)
	}
}

func TestTextReply(t *testing.T) {
	reply := TextReply(`say "hi"`)
	if reply.Shape != ShapeString {
		t.Fatalf("unexpected shape %s", reply.Shape)
	}
	if got := Normalize(reply, fallback); got != `say "hi"` {
		t.Fatalf("unexpected text %q", got)
	}
	if got := Normalize(TextReply(""), fallback); got != fallback {
		t.Fatalf("expected fallback for empty text, got %q", got)
	}
}

func TestNormalizeFormatsJSONOutput(t *testing.T) {
	cases := []struct {
		name string
		body string
		text string
	}{
		{"trailing zeros", `[{"output":{"output":{"n":1.50}}}]`, "{\n  \"n\": 1.5\n}"},
		{"exponent", `{"output":{"a":[1E3,1e21,0.0000001,-0.0]},"html_code":null}`, "{\n  \"a\": [\n    1000,\n    1e+21,\n    1e-7,\n    0\n  ]\n}"},
		{"index keys first", `{"output":{"output":{"b":1,"10":2,"2":3,"01":4}}}`, "{\n  \"2\": 3,\n  \"10\": 2,\n  \"b\": 1,\n  \"01\": 4\n}"},
		{"repeated key", `{"output":{"a":1,"b":2,"a":3},"html_code":null}`, "{\n  \"a\": 3,\n  \"b\": 2\n}"},
		{"escapes", `{"output":{"s":"<a href=\"x\">é</a>"},"html_code":null}`, "{\n  \"s\": \"<a href=\\\"x\\\">é</a>\"\n}"},
		{"empty containers", `{"output":{"a":{},"b":[]},"html_code":null}`, "{\n  \"a\": {},\n  \"b\": []\n}"},
		{"scalar number", `{"output":2.50,"html_code":null}`, "2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := Decode([]byte(tc.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := Normalize(reply, fallback); got != tc.text {
				t.Fatalf("expected %q, got %q", tc.text, got)
			}
		})
	}
}
