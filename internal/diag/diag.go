// Package diag models the linter's diagnostic records: decoding the tool's
// JSON output, the cache payload codec, and terminal rendering.
package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// ErrMalformed is returned when tool output is not a valid hint list.
var ErrMalformed = errors.New("malformed linter output")

// Severity is a diagnostic's severity.
type Severity string

const (
	Ignore     Severity = "Ignore"
	Suggestion Severity = "Suggestion"
	Warning    Severity = "Warning"
	Error      Severity = "Error"
)

// UnmarshalJSON accepts only the four known severities.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch Severity(v) {
	case Ignore, Suggestion, Warning, Error:
		*s = Severity(v)
		return nil
	}
	return fmt.Errorf("unknown severity %q", v)
}

// Hint is one diagnostic as reported by hlint --json.
type Hint struct {
	Module       []string `json:"module"`
	Decl         []string `json:"decl"`
	Severity     Severity `json:"severity"`
	Hint         string   `json:"hint"`
	File         string   `json:"file"`
	StartLine    int      `json:"startLine"`
	StartColumn  int      `json:"startColumn"`
	EndLine      int      `json:"endLine"`
	EndColumn    int      `json:"endColumn"`
	From         string   `json:"from"`
	To           *string  `json:"to"`
	Note         []string `json:"note"`
	Refactorings string   `json:"refactorings"`
}

// Parse decodes the linter's stdout, a JSON array of hints.
func Parse(data []byte) ([]Hint, error) {
	var hints []Hint
	if err := json.Unmarshal(bytes.TrimSpace(data), &hints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return hints, nil
}

// Encode serializes hints for the cache. An empty list encodes as "[]".
func Encode(hints []Hint) ([]byte, error) {
	if hints == nil {
		hints = []Hint{}
	}
	return json.Marshal(hints)
}

// WithFile returns a copy of hints with every File replaced by path.
func WithFile(hints []Hint, path string) []Hint {
	out := make([]Hint, len(hints))
	for i, h := range hints {
		h.File = path
		out[i] = h
	}
	return out
}

var headerStyle = func() *color.Color {
	c := color.New(color.Bold, color.Underline)
	c.EnableColor()
	return c
}()

// Render writes h in the compiler-style layout:
//
//	file:line:col: Severity: hint
//	Found:
//	  from
//	Perhaps:
//	  to
//	Note: note
//
// followed by a blank line. styled bolds and underlines the header line.
func Render(w io.Writer, h Hint, styled bool) error {
	header := fmt.Sprintf("%s:%d:%d: %s: %s", h.File, h.StartLine, h.StartColumn, h.Severity, h.Hint)
	if styled {
		header = headerStyle.Sprint(header)
	}

	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Found:\n  %s\n", h.From)
	if h.To != nil {
		fmt.Fprintf(&b, "Perhaps:\n  %s\n", *h.To)
	}
	for _, note := range h.Note {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	b.WriteString("\n")

	_, err := w.Write(b.Bytes())
	return err
}

// RenderAll renders each hint in order.
func RenderAll(w io.Writer, hints []Hint, styled bool) error {
	for _, h := range hints {
		if err := Render(w, h, styled); err != nil {
			return err
		}
	}
	return nil
}
