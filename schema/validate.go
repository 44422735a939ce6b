package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

// FieldError describes one problem with one property.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

// ValidationResult is the outcome of validating a node or a relationship triple.
// Warnings never make a result invalid.
type ValidationResult struct {
	IsValid  bool         `json:"is_valid"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []FieldError `json:"warnings,omitempty"`
}

func (r *ValidationResult) addError(field, format string, args ...any) {
	r.IsValid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err folds the errors into a single error, or returns nil for a valid result.
func (r ValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return errors.New(strings.Join(msgs, "; "))
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// dateLayouts are the ISO-8601 variants accepted for datetime properties.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05.000000Z",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDateTime parses a native time or one of the accepted ISO-8601 strings.
func ParseDateTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty date string")
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date format %q (expected ISO 8601)", s)
	default:
		return time.Time{}, fmt.Errorf("expected datetime, got %T", v)
	}
}

// ValidateNode checks props against the rules for node type t. With strict set
// to false only the presence of required properties is checked. The input map
// is never modified.
func (s *Schema) ValidateNode(t NodeType, props map[string]any, strict bool) ValidationResult {
	res := ValidationResult{IsValid: true}

	spec, ok := s.nodes[t]
	if !ok {
		res.addError("type", "unknown node type %q", t)
		return res
	}

	for _, name := range spec.Required {
		v, present := props[name]
		if !present || v == nil {
			res.addError(name, "required property is missing")
			continue
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" && !spec.IsOptional(name) {
			res.addError(name, "required property is empty")
		}
	}

	if !strict {
		return res
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		v := props[name]
		if v == nil {
			continue
		}
		if name == "status" {
			if str, isStr := v.(string); isStr && str != "" && !s.IsValidStatus(str) {
				res.addError(name, "status %q is not one of %v", str, s.Statuses())
				continue
			}
		}
		ps, known := s.properties[name]
		if !known {
			if !spec.IsRequired(name) && !spec.IsOptional(name) {
				res.addWarning(name, "unknown property")
			}
			continue
		}
		s.checkProperty(&res, spec, ps, v)
	}

	return res
}

func (s *Schema) checkProperty(res *ValidationResult, spec NodeSpec, ps PropertySpec, v any) {
	name := ps.Name
	switch ps.Type {
	case PropertyString:
		str, ok := v.(string)
		if !ok {
			res.addError(name, "expected string, got %T", v)
			return
		}
		// Empty required values are reported by the presence check.
		if str == "" {
			return
		}
		n := len([]rune(str))
		if ps.MinLength > 0 && n < ps.MinLength {
			res.addError(name, "length %d is below minimum %d", n, ps.MinLength)
		}
		if ps.MaxLength > 0 && n > ps.MaxLength {
			res.addError(name, "length %d exceeds maximum %d", n, ps.MaxLength)
		}
		if ps.Format == FormatEmail && !emailPattern.MatchString(str) {
			res.addError(name, "invalid email format %q", str)
		}

	case PropertyInteger:
		f, ok := toNumber(v)
		if !ok || f != math.Trunc(f) {
			res.addError(name, "expected integer, got %T", v)
			return
		}
		checkRange(res, ps, f)

	case PropertyFloat:
		f, ok := toNumber(v)
		if !ok {
			res.addError(name, "expected number, got %T", v)
			return
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			res.addError(name, "value is not a finite number")
			return
		}
		checkRange(res, ps, f)

	case PropertyBoolean:
		if _, ok := v.(bool); !ok {
			res.addError(name, "expected boolean, got %T", v)
		}

	case PropertyDateTime:
		if _, err := ParseDateTime(v); err != nil {
			res.addError(name, "%v", err)
		}

	case PropertyArray:
		kind := reflect.TypeOf(v).Kind()
		switch {
		case kind == reflect.Slice || kind == reflect.Array:
		case kind == reflect.Map && ps.AcceptObject:
			res.addWarning(name, "object given where a list is expected; accepted as-is")
		default:
			res.addError(name, "expected list, got %T", v)
		}

	case PropertyObject:
		if reflect.TypeOf(v).Kind() != reflect.Map {
			res.addError(name, "expected object, got %T", v)
		}
	}
}

func checkRange(res *ValidationResult, ps PropertySpec, f float64) {
	if ps.Min != nil && f < *ps.Min {
		res.addError(ps.Name, "value %v is below minimum %v", f, *ps.Min)
	}
	if ps.Max != nil && f > *ps.Max {
		res.addError(ps.Name, "value %v exceeds maximum %v", f, *ps.Max)
	}
}

// toNumber converts Go numeric kinds to float64. Booleans and strings are not numbers.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ValidateRelationship checks that the (from, rel, to) triple is declared legal.
func (s *Schema) ValidateRelationship(from NodeType, rel RelationType, to NodeType) ValidationResult {
	res := ValidationResult{IsValid: true}

	if rel == "" {
		res.addError("type", "relationship type is required")
		return res
	}
	if _, ok := s.nodes[from]; !ok {
		res.addError("from", "unknown node type %q", from)
	}
	if _, ok := s.nodes[to]; !ok {
		res.addError("to", "unknown node type %q", to)
	}
	if !res.IsValid {
		return res
	}

	if !s.IsAllowedRelationship(from, rel, to) {
		allowed := s.AllowedTargets(from, rel)
		if len(allowed) == 0 {
			res.addError("type", "relationship %s is not allowed from %s", rel, from)
		} else {
			res.addError("type", "relationship %s from %s must target one of %v, got %s", rel, from, allowed, to)
		}
	}
	return res
}
