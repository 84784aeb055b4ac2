// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"os"
	"regexp"
)

// MigrateError reports a failed v0-to-v1 migration. It is a distinct
// type from ParseError so callers can tell "your file is broken" from
// "your file could not be upgraded".
type MigrateError struct {
	Source string
	Msg    string
	Err    error
}

func (e *MigrateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migrate %s: %s: %v", e.Source, e.Msg, e.Err)
	}
	return fmt.Sprintf("migrate %s: %s", e.Source, e.Msg)
}

func (e *MigrateError) Unwrap() error { return e.Err }

// migration is one step of the upgrade chain: it rewrites a document
// of version from into a valid document of version to.
type migration struct {
	from, to string
	apply    func(text, source string) (string, error)
}

// migrations is the ordered upgrade table, oldest first. Each step's
// to version is the next step's from version; migrating walks the
// table from the source's version to the end.
var migrations = []migration{
	{from: "0", to: "1", apply: migrateV0toV1},
}

// versionMarker matches the policy_version line of a v0 document,
// quoted or not, preserving surrounding whitespace and any trailing
// comment in capture groups.
var versionMarker = regexp.MustCompile(`(?m)^(\s*policy_version\s*:\s*)(?:"0"|'0'|0)(\s*(?:#.*)?)$`)

// MigrateText rewrites a policy document as the newest version by
// applying every applicable step of the migration table. Each step
// changes only what it must; the v0→v1 step touches the version
// marker alone, preserving every other byte including comments and
// formatting.
func MigrateText(text string) (string, error) {
	return migrate(text, "<input>")
}

func migrate(text, source string) (string, error) {
	p, err := Parse(text)
	if err != nil {
		return "", &MigrateError{Source: source, Msg: "source is not a valid policy", Err: err}
	}

	start := -1
	for i, m := range migrations {
		if m.from == p.Version() {
			start = i
			break
		}
	}
	if start == -1 {
		return "", &MigrateError{Source: source,
			Msg: fmt.Sprintf("source is already v%s, not v0; no migration applies", p.Version())}
	}

	for _, m := range migrations[start:] {
		if text, err = m.apply(text, source); err != nil {
			return "", err
		}
	}
	return text, nil
}

// migrateV0toV1 rewrites the version marker and nothing else, then
// proves the result: it must parse as v1 with the same rule count.
func migrateV0toV1(text, source string) (string, error) {
	p, err := Parse(text)
	if err != nil {
		return "", &MigrateError{Source: source, Msg: "source is not a valid policy", Err: err}
	}
	v0, ok := p.(*PolicyV0)
	if !ok {
		return "", &MigrateError{Source: source, Msg: fmt.Sprintf("v0 step given a v%s document", p.Version())}
	}

	if !versionMarker.MatchString(text) {
		return "", &MigrateError{Source: source, Msg: "no v0 policy_version marker found"}
	}
	migrated := versionMarker.ReplaceAllString(text, `${1}"1"${2}`)

	out, err := Parse(migrated)
	if err != nil {
		return "", &MigrateError{Source: source, Msg: "migrated document failed v1 validation", Err: err}
	}
	v1, ok := out.(*PolicyV1)
	if !ok {
		return "", &MigrateError{Source: source, Msg: "migrated document did not parse as v1"}
	}
	if len(v1.Rules) != len(v0.Rules) {
		return "", &MigrateError{Source: source,
			Msg: fmt.Sprintf("rule count changed during migration: %d -> %d", len(v0.Rules), len(v1.Rules))}
	}
	return migrated, nil
}

// MigrateFile migrates src in place, or to dst when dst is non-empty.
func MigrateFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &MigrateError{Source: src, Msg: "read source", Err: err}
	}
	migrated, err := migrate(string(data), src)
	if err != nil {
		return err
	}
	if dst == "" {
		dst = src
	}
	if err := os.WriteFile(dst, []byte(migrated), 0o644); err != nil {
		return &MigrateError{Source: src, Msg: "write migrated policy", Err: err}
	}
	return nil
}
