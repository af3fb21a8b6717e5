package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/logger"
)

func testChannel(t *testing.T, allowed ...string) *Channel {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return New(Config{Token: "123:abc", AllowedUsers: allowed}, log)
}

func TestChannel_Identity(t *testing.T) {
	c := testChannel(t)
	assert.Equal(t, "telegram", c.Name())
	assert.Equal(t, "Telegram", c.DisplayName())
}

func TestChannel_IsAllowed(t *testing.T) {
	c := testChannel(t, "111", "222")
	assert.True(t, c.isAllowed("111"))
	assert.True(t, c.isAllowed("222"))
	assert.False(t, c.isAllowed("333"))

	// An empty allow-list denies everyone.
	empty := testChannel(t)
	assert.False(t, empty.isAllowed("111"))
}

func TestSplitMessage_ShortTextIsOneChunk(t *testing.T) {
	chunks := splitMessage("hello", 4096)
	assert.Equal(t, []string{"hello"}, chunks)

	chunks = splitMessage("", 4096)
	assert.Equal(t, []string{""}, chunks)
}

func TestSplitMessage_PrefersNewlineBoundary(t *testing.T) {
	text := strings.Repeat("x", 50) + "\n" + strings.Repeat("y", 50)
	chunks := splitMessage(text, 80)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("x", 50)+"\n", chunks[0])
	assert.Equal(t, strings.Repeat("y", 50), chunks[1])
}

func TestSplitMessage_HardSplitWithoutNewlines(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := splitMessage(text, 100)

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, 100, len(chunks[1]))
	assert.Equal(t, 50, len(chunks[2]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessage_IgnoresNewlineInFirstHalf(t *testing.T) {
	// A newline before the halfway point is too early a cut; the chunk
	// splits at the limit instead.
	text := "ab\n" + strings.Repeat("c", 200)
	chunks := splitMessage(text, 100)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessage_EveryChunkWithinLimit(t *testing.T) {
	text := strings.Repeat("line one is fairly short\n", 400)
	chunks := splitMessage(text, maxMessageLen)

	assert.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), maxMessageLen, "chunk %d", i)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessage_NeverSplitsARune(t *testing.T) {
	// Two-byte runes with no newlines; an odd limit lands mid-rune, so the
	// cut must back up to the previous rune boundary.
	text := strings.Repeat("é", 60)
	chunks := splitMessage(text, 101)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d", i)
		assert.LessOrEqual(t, len(chunk), 101, "chunk %d", i)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessage_MultiByteRunesAtNewlineBoundary(t *testing.T) {
	text := strings.Repeat("дом\n", 50)
	chunks := splitMessage(text, 100)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d", i)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestNew_DefaultSendTimeout(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	c := New(Config{Token: "123:abc"}, log)
	assert.Greater(t, c.cfg.SendTimeout.Seconds(), 0.0)
}
