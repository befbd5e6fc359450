package responder

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// formatJSON renders v with two-space indentation the way browsers and node
// print JSON: numbers in their shortest form, array-index keys first in
// ascending order, then the remaining keys in arrival order, a repeated key
// keeping its first position and last value.
func formatJSON(v gjson.Result) string {
	var buf bytes.Buffer
	writeJSON(&buf, v, "")
	return buf.String()
}

func writeJSON(buf *bytes.Buffer, v gjson.Result, indent string) {
	inner := indent + "  "
	switch {
	case v.IsArray():
		items := v.Array()
		if len(items) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteString("[\n")
		for i, item := range items {
			if i > 0 {
				buf.WriteString(",\n")
			}
			buf.WriteString(inner)
			writeJSON(buf, item, inner)
		}
		buf.WriteString("\n" + indent + "]")
	case v.IsObject():
		keys, values := objectMembers(v)
		if len(keys) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteString("{\n")
		for i, key := range keys {
			if i > 0 {
				buf.WriteString(",\n")
			}
			buf.WriteString(inner)
			buf.WriteString(quoteJSON(key))
			buf.WriteString(": ")
			writeJSON(buf, values[key], inner)
		}
		buf.WriteString("\n" + indent + "}")
	case v.Type == gjson.String:
		buf.WriteString(quoteJSON(v.Str))
	case v.Type == gjson.Number:
		buf.WriteString(formatNumber(v.Num))
	default:
		buf.WriteString(v.Raw)
	}
}

func objectMembers(v gjson.Result) ([]string, map[string]gjson.Result) {
	var indexes, names []string
	values := make(map[string]gjson.Result)
	v.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, seen := values[k]; !seen {
			if isArrayIndex(k) {
				indexes = append(indexes, k)
			} else {
				names = append(names, k)
			}
		}
		values[k] = value
		return true
	})
	sort.Slice(indexes, func(i, j int) bool {
		a, _ := strconv.ParseUint(indexes[i], 10, 32)
		b, _ := strconv.ParseUint(indexes[j], 10, 32)
		return a < b
	})
	return append(indexes, names...), values
}

func isArrayIndex(key string) bool {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	return err == nil && n < math.MaxUint32
}

// formatNumber prints f like Number.prototype.toString.
func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
