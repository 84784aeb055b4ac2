// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parse decodes a policy document from YAML text, dispatching on the
// policy_version marker. Unknown fields anywhere in the document are
// rejected. Inheritance is not resolved here: a v1 document with
// extends must go through Load, which knows the file's directory.
func Parse(text string) (Policy, error) {
	return parse([]byte(text), "<input>")
}

func parse(data []byte, source string) (Policy, error) {
	var probe struct {
		PolicyVersion *string `yaml:"policy_version"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, parseErrorf(source, "policy_version", "not valid YAML: %v", err)
	}
	if probe.PolicyVersion == nil {
		return nil, parseErrorf(source, "policy_version", "is required")
	}

	switch *probe.PolicyVersion {
	case "0":
		var p PolicyV0
		if err := decodeStrict(data, &p); err != nil {
			return nil, &ParseError{Source: source, Fields: []FieldError{{"policy", err.Error()}}}
		}
		if err := p.validate(source); err != nil {
			return nil, err
		}
		return &p, nil
	case "1":
		var p PolicyV1
		if err := decodeStrict(data, &p); err != nil {
			return nil, &ParseError{Source: source, Fields: []FieldError{{"policy", err.Error()}}}
		}
		if err := p.validate(source); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, parseErrorf(source, "policy_version", "unsupported policy_version %q (want \"0\" or \"1\")", *probe.PolicyVersion)
	}
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	// A second document in the stream is almost always a stray "---".
	if err := dec.Decode(new(yaml.Node)); !errors.Is(err, io.EOF) {
		return fmt.Errorf("policy file must contain exactly one YAML document")
	}
	return nil
}

// Load reads and parses a policy file, resolving extends chains for
// v1 documents. Inherited rules are appended after the child's own
// rules, so a child rule always shadows a base rule it overrides.
func Load(path string) (Policy, error) {
	return load(path, map[string]bool{})
}

func load(path string, visiting map[string]bool) (Policy, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve policy path %s: %w", path, err)
	}
	if visiting[abs] {
		return nil, parseErrorf(path, "extends", "circular extends chain involving %s", path)
	}
	visiting[abs] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	p, err := parse(data, path)
	if err != nil {
		return nil, err
	}

	v1, ok := p.(*PolicyV1)
	if !ok || v1.Extends == "" {
		return p, nil
	}

	basePath := v1.Extends
	if !filepath.IsAbs(basePath) {
		basePath = filepath.Join(filepath.Dir(path), basePath)
	}
	baseAny, err := load(basePath, visiting)
	if err != nil {
		return nil, err
	}
	base, ok := baseAny.(*PolicyV1)
	if !ok {
		return nil, parseErrorf(path, "extends", "extended policy %s must be a v1 policy", v1.Extends)
	}
	return mergeExtends(v1, base), nil
}

// mergeExtends flattens an inheritance step. Child rules come first;
// base rules are kept only when the child does not redefine their id.
// Child defaults and autonomy mode win when set.
func mergeExtends(child, base *PolicyV1) *PolicyV1 {
	merged := *child
	merged.Extends = ""

	childIDs := make(map[string]bool, len(child.Rules))
	for _, r := range child.Rules {
		childIDs[r.ID] = true
	}
	merged.Rules = append([]RuleV1{}, child.Rules...)
	for _, r := range base.Rules {
		if !childIDs[r.ID] {
			merged.Rules = append(merged.Rules, r)
		}
	}

	if merged.Mode == "" {
		merged.Mode = base.Mode
	}
	if merged.Defaults.NoMatch == "" {
		merged.Defaults.NoMatch = base.Defaults.NoMatch
	}
	if merged.Defaults.LowConfidence == "" {
		merged.Defaults.LowConfidence = base.Defaults.LowConfidence
	}
	return &merged
}

// Default returns the built-in policy used when no policy file is
// configured: everything goes to a human.
func Default() Policy {
	return &PolicyV0{
		PolicyVersion: "0",
		Name:          "safe-default",
		Mode:          ModeAssist,
		Rules: []Rule{{
			ID:          "default-require-human",
			Description: "Route every prompt to a human.",
			Action:      RequireHuman("No policy configured; human input required"),
		}},
	}
}

// ValidateFile loads a policy file and returns its problems as plain
// strings for display, or nil if the file is valid.
func ValidateFile(path string) []string {
	_, err := Load(path)
	if err == nil {
		return nil
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		out := make([]string, 0, len(perr.Fields))
		for _, f := range perr.Fields {
			out = append(out, f.String())
		}
		return out
	}
	return []string{err.Error()}
}
