package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrictProfile(t *testing.T) {
	p := Profile{Name: "fourmolu", Strict: true}
	got := p.Render("/nix/store/x-fourmolu/bin/fourmolu", []string{"/Users/dev"}, []string{"/tmp/groom-scratch"})

	assert.True(t, strings.HasPrefix(got, "(version 1)\n(deny default)\n"))
	assert.Contains(t, got, `(allow process-exec* (literal "/nix/store/x-fourmolu/bin/fourmolu"))`)
	assert.Contains(t, got, `(deny file-read* (subpath "/Users/dev"))`)
	assert.Contains(t, got, `(allow file-read* (subpath "/tmp/groom-scratch"))`)
	assert.NotContains(t, got, "(allow default)")

	deny := strings.Index(got, "(deny file-read*")
	carve := strings.Index(got, `(allow file-read* (subpath "/tmp/groom-scratch"))`)
	assert.Less(t, deny, carve, "carve-outs must follow the deny rule")
}

func TestRelaxedProfile(t *testing.T) {
	p := Profile{Name: "hlint"}
	got := p.Render("/opt/bin/hlint", []string{"/Users"}, nil)

	assert.Contains(t, got, "(allow default)")
	assert.Contains(t, got, "(deny file-write*)")
	assert.Contains(t, got, `(deny file-read* (subpath "/Users"))`)
	assert.NotContains(t, got, "(deny default)")
}

func TestProfileWithoutPrivatePaths(t *testing.T) {
	got := Profile{Strict: true}.Render("/bin/tool", nil, []string{"/tmp/x"})
	assert.NotContains(t, got, "(deny file-read*")
	assert.NotContains(t, got, "/tmp/x")
}

func TestQuoteEscapes(t *testing.T) {
	assert.Equal(t, `"/a \"b\" \\c"`, quote(`/a "b" \c`))
}
