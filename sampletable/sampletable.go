// Package sampletable implements the sample identity table shared by every
// stage: a sample carries a name, a role bitset (test / control / output),
// and, for the coverage-collector stage, the path to its alignment file.
package sampletable

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Role is a bitset: a sample may carry more than one role (spec: "a sample
// may be both control and output").
type Role int

const (
	RoleTest Role = 1 << iota
	RoleControl
	RoleOutput
)

// Sample is one entry of the sample table.
type Sample struct {
	Name  string
	Path  string // alignment file path; only set by ReadAlignmentList.
	Roles Role
}

func (s *Sample) Has(r Role) bool { return s.Roles&r != 0 }

// Table is the read-only list of samples participating in a run.
type Table struct {
	Samples []Sample
	byName  map[string]int
}

func (t *Table) Len() int { return len(t.Samples) }

func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// ReadAlignmentList parses the coverage-stage sample list: tab-separated
// `name\tpath`. Short or empty lines are skipped.
func ReadAlignmentList(ctx context.Context, path string) (*Table, error) {
	t := &Table{byName: map[string]int{}}
	err := scanLines(ctx, path, func(lineNo int, fields []string) error {
		if len(fields) < 2 {
			return nil
		}
		name := strings.TrimSpace(fields[0])
		p := strings.TrimSpace(fields[1])
		if name == "" || p == "" {
			return nil
		}
		if _, dup := t.byName[name]; dup {
			return errors.Errorf("duplicate sample name %q at line %d", name, lineNo)
		}
		t.byName[name] = len(t.Samples)
		t.Samples = append(t.Samples, Sample{Name: name, Path: p})
		return nil
	})
	if err != nil {
		return nil, errors.E(err, "reading sample list", path)
	}
	return t, nil
}

// parseTestControl matches the role token as a case-insensitive prefix of
// "test" or "control", following the original project's exact rule (any
// non-empty prefix of either word is accepted; anything else is an error).
func parseTestControl(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.Errorf("empty role token")
	}
	if strings.HasPrefix("control", s) {
		return RoleControl, nil
	}
	if strings.HasPrefix("test", s) {
		return RoleTest, nil
	}
	return 0, errors.Errorf("role %q is not a prefix of \"test\" or \"control\"", s)
}

// ReadRoleList parses the cross-norm/region-test sample list: tab-separated
// `name\trole`, role being a case-insensitive prefix of "test" or
// "control". Short or empty lines are skipped.
func ReadRoleList(ctx context.Context, path string) (*Table, error) {
	t := &Table{byName: map[string]int{}}
	err := scanLines(ctx, path, func(lineNo int, fields []string) error {
		if len(fields) < 2 {
			return nil
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil
		}
		role, err := parseTestControl(fields[1])
		if err != nil {
			return errors.E(err, "line", strconv.Itoa(lineNo))
		}
		if i, dup := t.byName[name]; dup {
			t.Samples[i].Roles |= role
			return nil
		}
		t.byName[name] = len(t.Samples)
		t.Samples = append(t.Samples, Sample{Name: name, Roles: role})
		return nil
	})
	if err != nil {
		return nil, errors.E(err, "reading role list", path)
	}
	return t, nil
}

// MarkOutputs sets RoleOutput on every sample in the table: used by the
// coverage-collector stage, where every configured sample is written out
// (spec: "invariant: every sample participating in a run carries at least
// one role").
func (t *Table) MarkOutputs() {
	for i := range t.Samples {
		t.Samples[i].Roles |= RoleOutput
	}
}

// MergeControls applies a separately supplied control list, adding
// RoleControl to every sample named in it. A sample not present in t is an
// error, mirroring the original's validation that a
// control list only ever narrows the default ("all samples are controls").
func (t *Table) MergeControls(ctx context.Context, path string) error {
	return scanLines(ctx, path, func(lineNo int, fields []string) error {
		if len(fields) < 1 {
			return nil
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil
		}
		i, ok := t.byName[name]
		if !ok {
			return errors.Errorf("control list line %d: sample %q not in sample list", lineNo, name)
		}
		t.Samples[i].Roles |= RoleControl
		return nil
	})
}

// DefaultAllControls marks every sample as a control, the behaviour when no
// separate control list is supplied (spec §6 / original lb_norm default).
func (t *Table) DefaultAllControls() {
	for i := range t.Samples {
		t.Samples[i].Roles |= RoleControl
	}
}

func scanLines(ctx context.Context, path string, fn func(lineNo int, fields []string) error) error {
	f, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close(ctx) // nolint: errcheck

	sc := bufio.NewScanner(f.Reader(ctx))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(lineNo, strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return sc.Err()
}
