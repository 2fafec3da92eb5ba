package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutput(t *testing.T) {
	sh := NewShell("")

	res, err := sh.Run("echo out; echo err 1>&2")
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, 0, res.ExitStatus)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, "echo out; echo err 1>&2", res.Command)
	assert.False(t, res.StartedAt.IsZero())
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	res, err := NewShell("sh").Run("exit 3")
	require.NoError(t, err)

	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitStatus)
}

func TestRunLineIsNotSplit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "with space.txt")

	res, err := NewShell("sh").Run("printf hi > '" + target + "' && cat '" + target + "'")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Stdout)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestRunSpawnError(t *testing.T) {
	sh := &Shell{Path: filepath.Join(t.TempDir(), "no-such-shell")}

	_, err := sh.Run("true")
	assert.Error(t, err)
}

func TestRunTruncatesOutput(t *testing.T) {
	res, err := NewShell("sh").Run("head -c 100000 /dev/zero")
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Len(t, res.Stdout, maxOutputBytes)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.truncated)

	n, err = b.Write([]byte(strings.Repeat("x", 10)))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "abcde", b.String())
}
