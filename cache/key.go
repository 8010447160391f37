package cache

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidKey is returned when key parameters do not fit a template.
var ErrInvalidKey = errors.New("invalid key")

// maxParamLength bounds a single substituted value.
const maxParamLength = 256

// Params maps template placeholder names to values.
type Params map[string]string

type segment struct {
	literal string
	param   string
}

// KeyTemplate is a parsed key pattern such as "userform:{userId}:{formToken}".
// Templates are parsed once and are safe for concurrent use.
type KeyTemplate struct {
	pattern  string
	segments []segment
	params   []string
}

// ParseKeyTemplate compiles pattern. Placeholders are written as {name}; two
// placeholders must be separated by a literal so keys can be parsed back.
func ParseKeyTemplate(pattern string) (*KeyTemplate, error) {
	if pattern == "" {
		return nil, errors.New("key pattern is empty")
	}

	t := &KeyTemplate{pattern: pattern}
	seen := make(map[string]bool)
	rest := pattern

	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.ContainsRune(rest, '}') {
				return nil, fmt.Errorf("key pattern %q: unbalanced '}'", pattern)
			}
			t.segments = append(t.segments, segment{literal: rest})
			break
		}

		if open > 0 {
			literal := rest[:open]
			if strings.ContainsRune(literal, '}') {
				return nil, fmt.Errorf("key pattern %q: unbalanced '}'", pattern)
			}
			t.segments = append(t.segments, segment{literal: literal})
		}

		closeIdx := strings.IndexByte(rest[open:], '}')
		if closeIdx < 0 {
			return nil, fmt.Errorf("key pattern %q: unterminated placeholder", pattern)
		}

		name := rest[open+1 : open+closeIdx]
		if name == "" || strings.ContainsAny(name, "{:") {
			return nil, fmt.Errorf("key pattern %q: invalid placeholder %q", pattern, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("key pattern %q: duplicate placeholder %q", pattern, name)
		}
		if n := len(t.segments); n > 0 && t.segments[n-1].param != "" {
			return nil, fmt.Errorf("key pattern %q: placeholders %q and %q must be separated",
				pattern, t.segments[n-1].param, name)
		}

		seen[name] = true
		t.params = append(t.params, name)
		t.segments = append(t.segments, segment{param: name})
		rest = rest[open+closeIdx+1:]
	}

	if len(t.params) == 0 {
		return nil, fmt.Errorf("key pattern %q has no placeholders", pattern)
	}

	return t, nil
}

// MustKeyTemplate is like ParseKeyTemplate but panics on error. It is meant
// for package-level namespace declarations.
func MustKeyTemplate(pattern string) *KeyTemplate {
	t, err := ParseKeyTemplate(pattern)
	if err != nil {
		panic(err)
	}

	return t
}

// Pattern returns the source pattern.
func (t *KeyTemplate) Pattern() string {
	return t.pattern
}

// Build substitutes every placeholder. All placeholders must be supplied and
// no unknown names are accepted.
func (t *KeyTemplate) Build(p Params) (string, error) {
	if err := t.checkNames(p); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range t.segments {
		if seg.param == "" {
			b.WriteString(seg.literal)
			continue
		}

		value, ok := p[seg.param]
		if !ok {
			return "", fmt.Errorf("%w: missing parameter %q for %q", ErrInvalidKey, seg.param, t.pattern)
		}
		if err := validateParam(seg.param, value); err != nil {
			return "", err
		}
		b.WriteString(value)
	}

	return b.String(), nil
}

// Prefix substitutes the leading placeholders present in p and stops at the
// first missing one, returning the literal text up to that point. Supplying a
// later placeholder while an earlier one is missing is an error.
func (t *KeyTemplate) Prefix(p Params) (string, error) {
	if err := t.checkNames(p); err != nil {
		return "", err
	}

	var b strings.Builder
	used := 0
	for _, seg := range t.segments {
		if seg.param == "" {
			b.WriteString(seg.literal)
			continue
		}

		value, ok := p[seg.param]
		if !ok {
			break
		}
		if err := validateParam(seg.param, value); err != nil {
			return "", err
		}
		b.WriteString(value)
		used++
	}

	if used != len(p) {
		return "", fmt.Errorf("%w: prefix parameters for %q must be leading", ErrInvalidKey, t.pattern)
	}

	return b.String(), nil
}

// Parse recovers the parameters from a key built by this template.
func (t *KeyTemplate) Parse(key string) (Params, error) {
	p := make(Params, len(t.params))
	rest := key

	for i, seg := range t.segments {
		if seg.param == "" {
			if !strings.HasPrefix(rest, seg.literal) {
				return nil, fmt.Errorf("%w: %q does not match %q", ErrInvalidKey, key, t.pattern)
			}
			rest = rest[len(seg.literal):]
			continue
		}

		end := len(rest)
		if i+1 < len(t.segments) {
			end = strings.Index(rest, t.segments[i+1].literal)
			if end < 0 {
				return nil, fmt.Errorf("%w: %q does not match %q", ErrInvalidKey, key, t.pattern)
			}
		}

		value := rest[:end]
		if err := validateParam(seg.param, value); err != nil {
			return nil, err
		}
		p[seg.param] = value
		rest = rest[end:]
	}

	if rest != "" {
		return nil, fmt.Errorf("%w: %q has trailing data for %q", ErrInvalidKey, key, t.pattern)
	}

	return p, nil
}

func (t *KeyTemplate) checkNames(p Params) error {
	for name := range p {
		known := false
		for _, param := range t.params {
			if param == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown parameter %q for %q", ErrInvalidKey, name, t.pattern)
		}
	}

	return nil
}

// validateParam keeps substituted values from crossing namespace boundaries or
// acting as scan patterns.
func validateParam(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: parameter %q is empty", ErrInvalidKey, name)
	}
	if len(value) > maxParamLength {
		return fmt.Errorf("%w: parameter %q is too long", ErrInvalidKey, name)
	}
	for _, r := range value {
		if unicode.IsControl(r) || unicode.IsSpace(r) || strings.ContainsRune(":{}*?[]\\", r) {
			return fmt.Errorf("%w: parameter %q contains a reserved character", ErrInvalidKey, name)
		}
	}

	return nil
}
