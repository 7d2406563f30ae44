// Package diag implements the diagnostic sink described in spec §4.G: a
// place every pipeline stage reports to, that by default keeps running
// best-effort instead of stopping at the first problem.
package diag

import (
	"fmt"
	"io"
	"sort"

	"github.com/opentosca/tosca-template/errs"
)

// Severity classifies a Diagnostic as blocking or informational.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one reported problem, carrying enough context to render
// a useful message and to sort a batch by source position.
type Diagnostic struct {
	Severity Severity
	Kind     errs.Kind
	Message  string
	Source   errs.Location
	Related  []errs.Location
	Tags     []string
}

// Sink accumulates diagnostics across all stages of one parse invocation.
// It is not safe for concurrent writers; per spec §5 a single invocation
// runs on one logical task.
type Sink struct {
	strict bool
	items  []Diagnostic
}

// New creates a Sink. The strict flag is only recorded and reported by
// Strict; the sink keeps accumulating every diagnostic and does not stop
// any stage itself.
func New(strict bool) *Sink {
	return &Sink{strict: strict}
}

// Strict reports whether the sink is operating in strict (fail-fast) mode.
func (s *Sink) Strict() bool {
	return s.strict
}

// Report records a diagnostic. Callers that raised an *errs.Error pass it
// straight through via ReportError.
func (s *Sink) Report(d Diagnostic) {
	s.items = append(s.items, d)
}

// ReportError records an *errs.Error as an error-severity diagnostic.
func (s *Sink) ReportError(err *errs.Error, tags ...string) {
	s.Report(Diagnostic{
		Severity: SeverityError,
		Kind:     err.Kind,
		Message:  err.Error(),
		Source:   err.Source,
		Related:  err.Related,
		Tags:     tags,
	})
}

// ReportWarning records a warning-severity diagnostic, e.g. for the
// deprecated-alias case in spec §8 scenario 6.
func (s *Sink) ReportWarning(kind errs.Kind, source errs.Location, tags []string, format string, args ...interface{}) {
	s.Report(Diagnostic{
		Severity: SeverityWarning,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Source:   source,
		Tags:     tags,
	})
}

// HasErrors reports whether any error-severity diagnostic has been recorded.
func (s *Sink) HasErrors() bool {
	for _, d := range s.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Items returns the diagnostics sorted by (file, line, column) as required
// by spec §7's user-visible output contract.
func (s *Sink) Items() []Diagnostic {
	out := make([]Diagnostic, len(s.items))
	copy(out, s.items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Source, out[j].Source
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// Fprint renders the sorted diagnostics to w, one per line, as
// "severity: kind: message (source)" — the structured replacement for a logging
// library in a library whose only "log" is its returned diagnostics.
func (s *Sink) Fprint(w io.Writer) {
	for _, d := range s.Items() {
		fmt.Fprintf(w, "%s: %s: %s (%s)\n", d.Severity, d.Kind, d.Message, d.Source)
	}
}
