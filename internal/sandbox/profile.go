package sandbox

import (
	"strings"
)

// Profile names a tool's sandbox policy.
//
// Strict profiles deny everything by default and allow exec of the resolved
// tool binary only. Relaxed profiles allow by default but still forbid writes
// and reads under private directories.
type Profile struct {
	Name   string
	Strict bool
}

// Render returns the sandbox-exec (SBPL) policy for running program.
// Reads under each private path are denied, then re-allowed for the program
// itself and for each readable path.
func (p Profile) Render(program string, private, readable []string) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	if p.Strict {
		b.WriteString("(deny default)\n")
		b.WriteString("(allow process-exec* (literal " + quote(program) + "))\n")
		b.WriteString("(allow process-fork)\n")
		b.WriteString("(allow sysctl-read)\n")
		b.WriteString("(allow file-read*)\n")
	} else {
		b.WriteString("(allow default)\n")
		b.WriteString("(deny file-write*)\n")
		b.WriteString("(allow file-write-data (literal \"/dev/null\"))\n")
	}
	for _, dir := range private {
		b.WriteString("(deny file-read* (subpath " + quote(dir) + "))\n")
	}
	if len(private) > 0 {
		b.WriteString("(allow file-read* (literal " + quote(program) + "))\n")
		for _, dir := range readable {
			b.WriteString("(allow file-read* (subpath " + quote(dir) + "))\n")
		}
	}
	return b.String()
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
