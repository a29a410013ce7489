package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperkey/unlock-cli/internal/config"
)

// writeStub writes an executable shell script acting as the extractor binary.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-extractor.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newRunner(t *testing.T, command string, timeoutSecs int) (*Subprocess, string) {
	t.Helper()
	tempDir := t.TempDir()
	r := NewSubprocess(config.ExtractorConfig{
		Command:     command,
		TimeoutSecs: timeoutSecs,
		TempDir:     tempDir,
	})
	return r, tempDir
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must be removed on every exit path")
}

func TestExtract_Success(t *testing.T) {
	stub := writeStub(t, `cp "$1" "$2"
echo "Method: stub-copy"
echo "Pages: 3"`)
	r, tempDir := newRunner(t, stub, 10)

	content := strings.Repeat("statement line\n", 20)
	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte(content),
		Filename:  "statement.pdf",
	})

	assert.True(t, out.Success)
	assert.Empty(t, out.ErrorDetail)
	assert.Equal(t, strings.TrimSpace(content), out.ExtractedText)
	assert.Equal(t, len(strings.TrimSpace(content)), out.CharCount)
	require.NotNil(t, out.PageCount)
	assert.Equal(t, 3, *out.PageCount)
	assert.Contains(t, out.RawDiagnostics, "Method: stub-copy")
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_PasswordArgumentPassed(t *testing.T) {
	stub := writeStub(t, `if [ "$3" = "secret" ]; then
  cp "$1" "$2"
else
  echo "Incorrect password provided"
  exit 1
fi`)
	r, tempDir := newRunner(t, stub, 10)
	req := ExtractRequest{FileBytes: []byte(strings.Repeat("x", 200)), Filename: "locked.pdf"}

	req.Password = "wrong"
	out := r.Extract(context.Background(), req)
	assert.False(t, out.Success)
	assert.Contains(t, out.RawDiagnostics, "Incorrect password")

	req.Password = "secret"
	out = r.Extract(context.Background(), req)
	assert.True(t, out.Success)
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_NonZeroExitWithOutputIsSuccess(t *testing.T) {
	stub := writeStub(t, `cp "$1" "$2"
exit 2`)
	r, tempDir := newRunner(t, stub, 10)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte(strings.Repeat("partial content ", 20)),
		Filename:  "partial.pdf",
	})

	// The output file decides, not the exit code.
	assert.True(t, out.Success)
	assert.Empty(t, out.ErrorDetail)
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_EmptyOutputIsFailure(t *testing.T) {
	stub := writeStub(t, `echo "nothing extracted"
exit 0`)
	r, tempDir := newRunner(t, stub, 10)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte("data"),
		Filename:  "empty.pdf",
	})

	assert.False(t, out.Success)
	assert.Equal(t, "empty output", out.ErrorDetail)
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_Timeout(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	r, tempDir := newRunner(t, stub, 1)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte("data"),
		Filename:  "slow.pdf",
	})

	assert.False(t, out.Success)
	assert.Equal(t, "timeout", out.ErrorDetail)
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_SpawnError(t *testing.T) {
	r, tempDir := newRunner(t, filepath.Join(t.TempDir(), "no-such-binary"), 5)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte("data"),
		Filename:  "doc.pdf",
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorDetail, "spawn:")
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_SpawnError_CommandNotOnPath(t *testing.T) {
	r, tempDir := newRunner(t, "no-such-extractor-binary", 5)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte("data"),
		Filename:  "doc.pdf",
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorDetail, "spawn:")
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_LowTextMarker(t *testing.T) {
	stub := writeStub(t, `cp "$1" "$2"`)
	r, tempDir := newRunner(t, stub, 10)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte("tiny"),
		Filename:  "scan.pdf",
	})

	assert.True(t, out.Success)
	assert.Contains(t, out.RawDiagnostics, "low text content")
	assertTempDirEmpty(t, tempDir)
}

func TestExtract_InputExtensionPreserved(t *testing.T) {
	stub := writeStub(t, `case "$1" in
  *.xlsx) cp "$1" "$2" ;;
  *) exit 1 ;;
esac`)
	r, tempDir := newRunner(t, stub, 10)

	out := r.Extract(context.Background(), ExtractRequest{
		FileBytes: []byte(strings.Repeat("cell,", 100)),
		Filename:  "ledger.xlsx",
	})

	assert.True(t, out.Success)
	assertTempDirEmpty(t, tempDir)
}
