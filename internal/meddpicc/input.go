package meddpicc

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidInput is returned when the top-level payload is not a mapping.
var ErrInvalidInput = eris.New("meddpicc: input must be a mapping of element names")

// ContentKind tags the shape of an element's substantive finding.
type ContentKind int

// Content kinds.
const (
	ContentNone ContentKind = iota
	ContentText
	ContentList
	ContentMapping
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentList:
		return "list"
	case ContentMapping:
		return "mapping"
	default:
		return "none"
	}
}

// Content is the tagged variant holding an element's finding. Exactly one of
// Text, Items or Fields is populated, according to Kind.
type Content struct {
	Kind   ContentKind
	Text   string
	Items  []string
	Fields map[string]string
}

// IsEmpty reports whether the content carries no finding.
func (c Content) IsEmpty() bool {
	return c.Kind == ContentNone
}

// richness counts the distinct facts in the content. Free text is treated as
// a complete statement and earns full richness.
func (c Content) richness(expected int) int {
	switch c.Kind {
	case ContentText:
		return expected
	case ContentList:
		return len(c.Items)
	case ContentMapping:
		return len(c.Fields)
	default:
		return 0
	}
}

// ElementInput is the normalized extraction data for one element.
type ElementInput struct {
	Content    Content
	Confidence float64
	Evidence   []string

	// Aux holds populated element-specific fields (timeline, business_impact, ...).
	Aux map[string]Content

	// Strength is the champion's stated strength, lower-cased.
	Strength string

	// Malformed is set when a field had the wrong type and was replaced by a default.
	Malformed bool
}

// Snapshot is a parsed extraction payload covering all eight elements.
type Snapshot struct {
	Elements          map[Element]ElementInput
	IgnoredKeys       []string
	MalformedElements []Element
}

// Input returns the parsed input for e, or the zero value if it was absent.
func (s Snapshot) Input(e Element) ElementInput {
	return s.Elements[e]
}

// ParseSnapshot decodes a JSON extraction payload. Only a non-object top
// level is an error; everything below it degrades to defaults.
func ParseSnapshot(raw []byte) (Snapshot, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Snapshot{}, eris.Wrap(ErrInvalidInput, "meddpicc: decode payload: "+err.Error())
	}
	return SnapshotFrom(v)
}

// SnapshotFrom builds a Snapshot from an already-decoded payload. Any map
// keyed by strings is accepted, including typed literals such as
// map[string]map[string]any.
func SnapshotFrom(v any) (Snapshot, error) {
	if snap, ok := v.(Snapshot); ok {
		return snap, nil
	}
	m, ok := stringMap(v)
	if !ok {
		return Snapshot{}, eris.Wrapf(ErrInvalidInput, "meddpicc: got %T", v)
	}
	return NewSnapshot(m), nil
}

// stringMap is a shallow conversion of a string-keyed map to map[string]any.
func stringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// normalize rewrites typed Go values into the shapes encoding/json decodes
// to: string-keyed maps become map[string]any, slices become []any, numbers
// become float64 and named strings or bools lose their type.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, fv := range t {
			out[k] = normalize(fv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		m, ok := stringMap(v)
		if !ok {
			return v
		}
		return normalize(m)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}

// NewSnapshot normalizes a decoded extraction mapping. Unknown keys are
// recorded and ignored; missing elements are left empty.
func NewSnapshot(data map[string]any) Snapshot {
	snap := Snapshot{Elements: make(map[Element]ElementInput, len(elementProfiles))}

	for key := range data {
		if _, ok := elementProfiles[Element(key)]; !ok {
			snap.IgnoredKeys = append(snap.IgnoredKeys, key)
		}
	}
	sort.Strings(snap.IgnoredKeys)

	for _, e := range AllElements() {
		raw, ok := data[string(e)]
		if !ok || raw == nil {
			snap.Elements[e] = ElementInput{}
			continue
		}
		in := parseElementInput(e, raw)
		if in.Malformed {
			snap.MalformedElements = append(snap.MalformedElements, e)
		}
		snap.Elements[e] = in
	}
	return snap
}

func parseElementInput(e Element, raw any) ElementInput {
	fields, ok := normalize(raw).(map[string]any)
	if !ok {
		return ElementInput{Malformed: true}
	}
	prof := elementProfiles[e]

	var in ElementInput
	for _, key := range prof.contentKeys {
		if v, ok := fields[key]; ok {
			in.Content = toContent(v)
			if !in.Content.IsEmpty() {
				break
			}
		}
	}

	if v, ok := fields["confidence"]; ok && v != nil {
		c, ok := toConfidence(v)
		if !ok {
			in.Malformed = true
		}
		in.Confidence = c
	}

	if v, ok := fields["evidence"]; ok && v != nil {
		ev, ok := toStringList(v)
		if !ok {
			in.Malformed = true
		}
		in.Evidence = ev
	}

	for _, key := range prof.auxKeys {
		if v, ok := fields[key]; ok {
			if c := toContent(v); !c.IsEmpty() {
				if in.Aux == nil {
					in.Aux = make(map[string]Content, len(prof.auxKeys))
				}
				in.Aux[key] = c
			}
		}
	}

	if e == Champion {
		if s, ok := scalarString(fields["strength"]); ok {
			in.Strength = strings.ToLower(s)
		} else if in.Content.Kind == ContentMapping {
			in.Strength = strings.ToLower(in.Content.Fields["strength"])
		}
	}

	return in
}

// toContent converts a decoded JSON value into the tagged Content variant.
func toContent(v any) Content {
	switch t := v.(type) {
	case nil:
		return Content{}
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, fv := range t {
			if s := flatten(fv); s != "" {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return Content{}
		}
		return Content{Kind: ContentMapping, Fields: out}
	case []any, []string:
		items, _ := toStringList(t)
		if len(items) == 0 {
			return Content{}
		}
		return Content{Kind: ContentList, Items: items}
	default:
		if s, ok := scalarString(t); ok && s != "" {
			return Content{Kind: ContentText, Text: s}
		}
		return Content{}
	}
}

// toStringList accepts a list of scalars (or a lone string). The bool result
// is false when the value had an unusable shape.
func toStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}, true
		}
		return nil, true
	case []string:
		var out []string
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []any:
		var out []string
		for _, item := range t {
			if s := flatten(item); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// flatten renders any JSON value as a single line of text.
func flatten(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			if s := flatten(t[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []any:
		var parts []string
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		s, _ := scalarString(t)
		return s
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		// A false flag ("engaged": false) is not a finding.
		if t {
			return "yes", true
		}
		return "", true
	default:
		return "", false
	}
}

// toConfidence coerces a confidence value and clamps it to [0,1].
func toConfidence(v any) (float64, bool) {
	switch t := normalize(v).(type) {
	case float64:
		return clampUnit(t), true
	case json.Number:
		return parseConfidence(t.String())
	case string:
		return parseConfidence(t)
	default:
		return 0, false
	}
}

// parseConfidence parses a numeric string. Out-of-range values still clamp:
// "1e400" is 1 and "1e-400" is 0.
func parseConfidence(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return clampUnit(f), true
}

func clampUnit(f float64) float64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 1
	}
	return f
}
