// Package schemapath reads and writes the canonical record by dot-path.
// Every write returns a freshly decoded record; inputs are never mutated.
package schemapath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"moveline/internal/domain"
)

// ErrInvalidPath and ErrInvalidValue classify rejected writes.
var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidValue = errors.New("invalid value")
)

// ValidPath reports whether path is a plain dot-separated identifier list.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// Get returns the value at path in its generic JSON form. The boolean is
// false when any segment is absent.
func Get(s domain.Schema, path string) (any, bool) {
	if !ValidPath(path) {
		return nil, false
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Set returns a copy of s with value written at path.
func Set(s domain.Schema, path string, value any) (domain.Schema, error) {
	if !ValidPath(path) {
		return domain.Schema{}, fmt.Errorf("%w %q", ErrInvalidPath, path)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("encode schema: %w", err)
	}
	data, err = sjson.SetBytes(data, path, value)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("set %s: %w", path, err)
	}
	out, err := decode(data)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("%w: set %s: %v", ErrInvalidValue, path, err)
	}
	return out, nil
}

// Merge applies patch one level deep per section: each section.field in the
// patch replaces that field as a whole.
func Merge(s domain.Schema, patch domain.Patch) (domain.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("encode schema: %w", err)
	}
	sections := make([]string, 0, len(patch))
	for section := range patch {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	for _, section := range sections {
		if !gjson.GetBytes(data, section).IsObject() {
			return domain.Schema{}, fmt.Errorf("%w: unknown section %q", ErrInvalidPath, section)
		}
		fields := patch[section]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			path := section + "." + name
			if !ValidPath(path) {
				return domain.Schema{}, fmt.Errorf("%w %q", ErrInvalidPath, path)
			}
			data, err = sjson.SetBytes(data, path, fields[name])
			if err != nil {
				return domain.Schema{}, fmt.Errorf("merge %s: %w", path, err)
			}
		}
	}
	out, err := decode(data)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("%w: merge: %v", ErrInvalidValue, err)
	}
	return out, nil
}

func decode(data []byte) (domain.Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out domain.Schema
	if err := dec.Decode(&out); err != nil {
		return domain.Schema{}, err
	}
	out.Normalize()
	return out, nil
}
