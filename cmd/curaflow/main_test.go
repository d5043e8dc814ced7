package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"-h"}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "Usage:")
}

func TestRunUsageErrorExitCode(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"bogus"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), `unknown command "bogus"`)
}

func TestRunInvalidGraphExitCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes": []}`), 0600))

	var out, errOut bytes.Buffer
	code := run([]string{"validate", path}, &out, &errOut)
	require.Equal(t, 1, code)
	require.Contains(t, out.String(), `"valid": false`)
}
