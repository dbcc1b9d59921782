package transcript

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usageLine(input, create, read int) string {
	return fmt.Sprintf(`{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":%d,"output_tokens":999,"cache_creation_input_tokens":%d,"cache_read_input_tokens":%d}}}`,
		input, create, read)
}

func TestTokenUsageSingleEntry(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "-p", "s1",
		`{"type":"assistant","message":{"usage":{"input_tokens":100,"cache_creation_input_tokens":20,"cache_read_input_tokens":5}}}`)

	u, err := NewStore(root).TokenUsage("-p", "s1", 160000)
	require.NoError(t, err)

	assert.Equal(t, int64(125), u.Used)
	assert.Equal(t, int64(160000), u.Total)
	assert.Equal(t, Breakdown{Input: 100, CacheCreation: 20, CacheRead: 5}, u.Breakdown)
}

func TestTokenUsageReturnsNewestNotSum(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "-p", "s1",
		usageLine(10, 1, 1),
		`{not json`,
		usageLine(20, 2, 2),
		`{"type":"user","message":{"role":"user","content":"hi"}}`,
		usageLine(30, 3, 3),
		`{"type":"assistant","message":{"content":"no usage"}}`,
		`partial {"type":"assist`,
	)

	u, err := NewStore(root).TokenUsage("-p", "s1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(36), u.Used)
	assert.Equal(t, Breakdown{Input: 30, CacheCreation: 3, CacheRead: 3}, u.Breakdown)
}

func TestTokenUsageNoUsageIsZero(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "-p", "s1", `{"type":"user"}`, `garbage`)

	u, err := NewStore(root).TokenUsage("-p", "s1", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Used)
	assert.Equal(t, int64(5000), u.Total)
	assert.Equal(t, Breakdown{}, u.Breakdown)
}

func TestTokenUsageTopLevelUsage(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "-p", "s1",
		`{"type":"assistant","usage":{"input_tokens":7,"cache_creation_input_tokens":0,"cache_read_input_tokens":1}}`)

	u, err := NewStore(root).TokenUsage("-p", "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(8), u.Used)
}

func TestTokenUsageUserEntriesIgnored(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "-p", "s1",
		usageLine(50, 0, 0),
		`{"type":"user","usage":{"input_tokens":9999}}`)

	u, err := NewStore(root).TokenUsage("-p", "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Used)
}

func TestTokenUsageMissingFile(t *testing.T) {
	_, err := NewStore(t.TempDir()).TokenUsage("-p", "absent", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenUsageTraversalNeverReads(t *testing.T) {
	_, err := NewStore(t.TempDir()).TokenUsage("-p", "../../etc/passwd", 10)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestReverseLinesAcrossChunks(t *testing.T) {
	var lines []string
	for i := 0; i < 5000; i++ {
		lines = append(lines, fmt.Sprintf("line-%04d-%s", i, strings.Repeat("x", 40)))
	}
	data := []byte(strings.Join(lines, "\n"))

	var got []string
	err := reverseLines(bytes.NewReader(data), int64(len(data)), func(line []byte) bool {
		got = append(got, string(line))
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, len(lines))
	for i := range lines {
		assert.Equal(t, lines[len(lines)-1-i], got[i])
	}
}

func TestReverseLinesStopsEarly(t *testing.T) {
	data := []byte("a\nb\nc\n")
	var got []string
	err := reverseLines(bytes.NewReader(data), int64(len(data)), func(line []byte) bool {
		got = append(got, string(line))
		return len(got) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, got)
}
