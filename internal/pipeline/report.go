package pipeline

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/groom/internal/diag"
)

// Reporter serializes user-facing output from concurrent tasks.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer

	// JSON prints diagnostics as one JSON object per line.
	JSON bool
	// Styled emphasizes diagnostic headers with terminal escapes.
	Styled bool
}

// NewReporter writes results to out and summaries to errw. Nil writers
// discard. Headers are styled when out is a terminal.
func NewReporter(out, errw io.Writer, jsonLines bool) *Reporter {
	if out == nil {
		out = io.Discard
	}
	if errw == nil {
		errw = io.Discard
	}
	r := &Reporter{out: out, err: errw, JSON: jsonLines}
	if f, ok := out.(*os.File); ok && !jsonLines {
		r.Styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return r
}

// Hints prints diagnostics.
func (r *Reporter) Hints(hints []diag.Hint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.JSON {
		return diag.RenderAll(r.out, hints, r.Styled)
	}
	enc := json.NewEncoder(r.out)
	for _, h := range hints {
		if err := enc.Encode(h); err != nil {
			return err
		}
	}
	return nil
}

// Stream writes formatter output verbatim.
func (r *Reporter) Stream(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.out.Write(data)
	return err
}

var printer = message.NewPrinter(language.English)

// Summary prints a line like "Formatted 1,234 of 2,000 Haskell files".
func (r *Reporter) Summary(verb, lang string, n, total int) {
	noun := "files"
	if total == 1 {
		noun = "file"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	printer.Fprintf(r.err, "%s %d of %d %s %s\n", verb, n, total, lang, noun)
}
