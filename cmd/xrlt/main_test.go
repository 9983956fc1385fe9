package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt"
	"github.com/aretw0/xrlt/internal/testutils"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "xrlt version "+strings.TrimSpace(xrlt.Version)+"\n", out)
}

func TestRunCommand(t *testing.T) {
	dir := testutils.SetupSheetDir(t, map[string]string{"sum.xrl": testutils.Sheet(`
  <x:param name="a">0</x:param>
  <x:param name="b">0</x:param>
  <sum><x:value-of select="$a + $b"/></sum>`)})
	t.Chdir(dir)

	out, err := execute(t, "run", "--dir", dir, "--log-level", "error", "sum.xrl", "a=2", "b=3")
	require.NoError(t, err)
	assert.Equal(t, "<sum>5</sum>\n", out)

	_, err = execute(t, "run", "--dir", dir, "sum.xrl", "oops")
	assert.Error(t, err)
}

func TestValidateAndGraphCommands(t *testing.T) {
	dir := testutils.SetupSheetDir(t, map[string]string{
		"good.xrl": testutils.Sheet(`<x:slice name="s"><b/></x:slice><p><x:apply name="s"/></p>`),
		"bad.xrl":  testutils.Sheet(`<x:apply name="ghost"/>`),
	})
	t.Chdir(dir)

	out, err := execute(t, "validate", "--dir", dir, "good.xrl")
	require.NoError(t, err)
	assert.Equal(t, "good.xrl: ok\n", out)

	out, err = execute(t, "validate", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.xrl")
	assert.Contains(t, err.Error(), `slice "ghost" is not defined`)
	assert.Contains(t, out, "good.xrl: ok")

	out, err = execute(t, "graph", "--dir", dir, "good.xrl")
	require.NoError(t, err)
	assert.Contains(t, out, `sheet -- "apply" --> slice_s`)
}
