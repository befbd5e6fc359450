package responder

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Shape tags which reply layout the responder used.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeArray
	ShapeObject
	ShapeOutputOnly
	ShapeString
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeObject:
		return "object"
	case ShapeOutputOnly:
		return "output-only"
	case ShapeString:
		return "string"
	default:
		return "empty"
	}
}

// Reply is a decoded responder answer. Output holds the raw JSON value picked
// as the answer (nil when none); FallbackOutput asks Normalize for the
// fallback phrase even though the shape matched.
type Reply struct {
	Shape          Shape
	Output         json.RawMessage
	HTML           *string
	FallbackOutput bool
}

// ErrInvalidReply is returned when the responder body is not JSON.
var ErrInvalidReply = errors.New("responder reply is not valid json")

// TextReply wraps plain text the same way a bare JSON string reply decodes.
func TextReply(text string) Reply {
	raw, _ := json.Marshal(text)
	return Reply{Shape: ShapeString, Output: raw}
}

// Decode classifies a raw responder body.
func Decode(body []byte) (Reply, error) {
	if !gjson.ValidBytes(body) {
		return Reply{}, ErrInvalidReply
	}
	root := gjson.ParseBytes(body)

	switch {
	case root.IsArray():
		first := root.Get("0")
		if !first.IsObject() {
			return Reply{Shape: ShapeEmpty}, nil
		}
		out := first.Get("output")
		if !truthy(out) {
			return Reply{Shape: ShapeEmpty}, nil
		}
		r := pickOutput(out)
		r.Shape = ShapeArray
		return r, nil

	case root.IsObject():
		out := root.Get("output")
		html := root.Get("html_code")
		if out.Exists() && html.Exists() {
			return Reply{Shape: ShapeObject, Output: rawOf(out), HTML: htmlOf(html)}, nil
		}
		if out.Exists() {
			r := pickOutput(out)
			r.Shape = ShapeOutputOnly
			return r, nil
		}
		return Reply{Shape: ShapeEmpty}, nil

	case root.Type == gjson.String:
		return Reply{Shape: ShapeString, Output: rawOf(root)}, nil
	}
	return Reply{Shape: ShapeEmpty}, nil
}

// pickOutput resolves an `output` value: strings are used directly and
// objects contribute their own output and html_code. Other types yield nothing.
func pickOutput(out gjson.Result) Reply {
	switch {
	case out.Type == gjson.String:
		return Reply{Output: rawOf(out)}
	case out.IsObject():
		inner := out.Get("output")
		r := Reply{HTML: htmlOf(out.Get("html_code"))}
		if truthy(inner) {
			r.Output = rawOf(inner)
		} else {
			r.FallbackOutput = true
		}
		return r
	}
	return Reply{}
}

// Normalize turns a decoded reply into the text that gets stored and returned.
func Normalize(r Reply, fallback string) string {
	if r.FallbackOutput || len(r.Output) == 0 {
		return fallback
	}
	v := gjson.ParseBytes(r.Output)
	switch {
	case v.Type == gjson.Null:
		return fallback
	case v.Type == gjson.String:
		if v.Str == "" {
			return fallback
		}
		return v.Str
	case v.Type == gjson.Number:
		return formatNumber(v.Num)
	case v.IsObject() || v.IsArray():
		return formatJSON(v)
	}
	return v.Raw
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.True, gjson.JSON:
		return true
	}
	return false
}

func rawOf(v gjson.Result) json.RawMessage {
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}

// htmlOf keeps html_code only when it carries something to render.
func htmlOf(v gjson.Result) *string {
	var s string
	switch v.Type {
	case gjson.String:
		s = v.Str
	case gjson.Null:
		return nil
	default:
		if !v.Exists() {
			return nil
		}
		s = v.Raw
	}
	if s == "" {
		return nil
	}
	return &s
}

func (r Reply) String() string {
	return fmt.Sprintf("%s(%s)", r.Shape, string(r.Output))
}
