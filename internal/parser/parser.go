// Package parser turns raw model output into a validated bias verdict.
//
// Local models rarely return clean JSON: the object is wrapped in prose or
// markdown fences, uses smart quotes, or carries trailing commas. Parse
// locates the first balanced JSON object, decodes it (with one bounded
// repair pass), and validates every field. Anything that fails becomes a
// model.ParseError with the stage that failed; nothing is ever defaulted to
// a guessed label.
//
// Parse is a pure function of its input. It never calls the model.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/timvw/bias-lens/internal/model"
)

// FieldMap maps each verdict field to the JSON keys accepted for it.
// Keys match case-insensitively; the first key of each list is the one
// the prompt asks the model to use.
type FieldMap struct {
	Label      []string `yaml:"label"`
	Confidence []string `yaml:"confidence"`
	Rationale  []string `yaml:"rationale"`
}

// DefaultFields accepts the keys this prompt asks for plus the aliases
// local models commonly drift to.
func DefaultFields() FieldMap {
	return FieldMap{
		Label:      []string{"label", "bias"},
		Confidence: []string{"confidence", "score"},
		Rationale:  []string{"rationale", "reasoning"},
	}
}

// WithDefaults fills empty key lists from DefaultFields.
func (f FieldMap) WithDefaults() FieldMap {
	d := DefaultFields()
	if len(f.Label) == 0 {
		f.Label = d.Label
	}
	if len(f.Confidence) == 0 {
		f.Confidence = d.Confidence
	}
	if len(f.Rationale) == 0 {
		f.Rationale = d.Rationale
	}
	return f
}

// Parser validates model output against a field mapping.
type Parser struct {
	fields FieldMap
}

// New creates a parser. Empty key lists fall back to DefaultFields.
func New(fields FieldMap) *Parser {
	return &Parser{fields: fields.WithDefaults()}
}

// Fields returns the effective field mapping.
func (p *Parser) Fields() FieldMap {
	return p.fields
}

// Parse extracts and validates a verdict from raw model output.
func (p *Parser) Parse(raw string) model.Outcome {
	span, ok := FirstObject(raw)
	if !ok {
		return model.Failed(model.StageNoJSON, "no balanced JSON object in model output", raw)
	}

	obj, err := decode(span)
	if err != nil {
		repaired := Repair(span)
		var retryErr error
		obj, retryErr = decode(repaired)
		if retryErr != nil {
			return model.Failed(model.StageInvalidJSON, fmt.Sprintf("decode JSON object: %v", err), raw)
		}
	}

	labelVal, labelKey, ok := lookup(obj, p.fields.Label)
	if !ok {
		return model.Failed(model.StageMissing, missingDetail("label", p.fields.Label), raw)
	}
	confVal, confKey, ok := lookup(obj, p.fields.Confidence)
	if !ok {
		return model.Failed(model.StageMissing, missingDetail("confidence", p.fields.Confidence), raw)
	}
	ratVal, ratKey, ok := lookup(obj, p.fields.Rationale)
	if !ok {
		return model.Failed(model.StageMissing, missingDetail("rationale", p.fields.Rationale), raw)
	}

	labelStr, isString := labelVal.(string)
	if !isString {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q must be a string, got %s", labelKey, describe(labelVal)), raw)
	}
	label, ok := model.ParseLabel(labelStr)
	if !ok {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q is %q, want one of left, right, neutral", labelKey, labelStr), raw)
	}

	confidence, err := number(confVal)
	if err != nil {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q: %v", confKey, err), raw)
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q is %v, want a finite number", confKey, confidence), raw)
	}
	if confidence < 0 || confidence > 1 {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q is %v, want a value within [0, 1]", confKey, confidence), raw)
	}

	rationale, isString := ratVal.(string)
	if !isString {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q must be a string, got %s", ratKey, describe(ratVal)), raw)
	}
	rationale = strings.TrimSpace(rationale)
	if rationale == "" {
		return model.Failed(model.StageOutOfDomain, fmt.Sprintf("%q is empty", ratKey), raw)
	}

	return model.Succeeded(model.BiasVerdict{
		Label:      label,
		Confidence: confidence,
		Rationale:  rationale,
	})
}

// decode strictly decodes a JSON object, keeping numbers as json.Number.
func decode(span string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return obj, nil
}

// lookup returns the first present, non-null value among keys.
// An exact key match wins over a case-insensitive one.
func lookup(obj map[string]any, keys []string) (any, string, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v, key, true
		}
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, key := range keys {
		for _, k := range names {
			if v := obj[k]; v != nil && strings.EqualFold(k, key) {
				return v, k, true
			}
		}
	}
	return nil, "", false
}

func missingDetail(field string, keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = strconv.Quote(k)
	}
	return fmt.Sprintf("required field %s missing (accepted keys: %s)", field, strings.Join(quoted, ", "))
}

// number accepts a JSON number or a string holding one.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("must be a number, got %s", describe(v))
	}
}

func describe(v any) string {
	switch v.(type) {
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// FirstObject returns the first balanced top-level {...} span in s.
// Braces inside string literals are ignored. An opening brace that never
// closes is skipped and the search resumes at the next one.
func FirstObject(s string) (string, bool) {
	from := 0
	for {
		rel := strings.IndexByte(s[from:], '{')
		if rel < 0 {
			return "", false
		}
		start := from + rel
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		from = start + 1
	}
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Repair applies the bounded set of lenient fixes tried after a strict
// decode fails: smart double quotes that delimit strings become ASCII
// quotes and trailing commas before a closing brace or bracket are dropped.
// Quote characters inside string literals are left as they are.
func Repair(span string) string {
	return dropTrailingCommas(straightenQuotes(span))
}

func isSmartDouble(r rune) bool {
	switch r {
	case '“', '”', '„', '‟':
		return true
	}
	return false
}

// straightenQuotes rewrites smart double quotes that open or close a string
// as ASCII quotes. A string opened by a smart quote ends at the next smart
// quote followed by a JSON delimiter; ASCII quotes inside it are escaped.
func straightenQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	const (
		outside = iota
		inASCII
		inSmart
	)
	state := outside
	escaped := false
	for i, r := range s {
		switch state {
		case outside:
			switch {
			case r == '"':
				state = inASCII
			case isSmartDouble(r):
				state = inSmart
				r = '"'
			}
			b.WriteRune(r)
		case inASCII:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				state = outside
			}
			b.WriteRune(r)
		case inSmart:
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
			case r == '\\':
				escaped = true
				b.WriteRune(r)
			case r == '"':
				b.WriteString(`\"`)
			case isSmartDouble(r) && endsString(s[i+utf8.RuneLen(r):]):
				state = outside
				b.WriteByte('"')
			default:
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// endsString reports whether rest starts, after whitespace, with a token
// that may follow a string literal.
func endsString(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ':', ',', '}', ']':
		return true
	}
	return false
}

// dropTrailingCommas removes commas that are followed only by whitespace
// and a closing } or ], outside string literals.
func dropTrailingCommas(s string) string {
	var b bytes.Buffer
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
