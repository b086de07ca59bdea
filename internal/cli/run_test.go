package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsMissingArgument(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(nil, &out, &errOut)
	assert.Equal(t, ExitInputError, code)
	assert.Contains(t, errOut.String(), "usage:")
}

func TestRunRejectsUnreadableFile(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{filepath.Join(t.TempDir(), "does-not-exist.obj")}, &out, &errOut)
	assert.Equal(t, ExitInputError, code)
}

func TestRunRejectsSyntaxError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.obj")
	require.NoError(t, os.WriteFile(path, []byte("module list { fun broken( }"), 0o644))

	var out, errOut bytes.Buffer
	code := run([]string{path}, &out, &errOut)
	assert.Equal(t, ExitInputError, code)
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--not-a-real-flag"}, &out, &errOut)
	assert.Equal(t, ExitInputError, code)
}
