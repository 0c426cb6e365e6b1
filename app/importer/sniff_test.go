package importer

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name     string
		sample   []byte
		expected string
	}{
		{"plain ascii", []byte("name,phone\nJohn,+14155552671\n"), "utf-8"},
		{"utf-8 multibyte", []byte("name,phone\nJos\xc3\xa9,+14155552671\n"), "utf-8"},
		{"latin1 bytes", []byte("name,phone\nJos\xe9,+14155552671\n"), "latin1"},
		{"empty", []byte{}, "utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectEncoding(tt.sample))
		})
	}
}

func TestDecodingReader(t *testing.T) {
	t.Run("latin1 decoded to utf-8", func(t *testing.T) {
		r := DecodingReader(strings.NewReader("Jos\xe9"), "latin1")
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "José", string(out))
	})

	t.Run("utf-8 passthrough", func(t *testing.T) {
		r := DecodingReader(strings.NewReader("José"), "utf-8")
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "José", string(out))
	})

	t.Run("cp1252 decoded", func(t *testing.T) {
		// 0x93/0x94 are curly quotes in Windows-1252
		r := DecodingReader(strings.NewReader("\x93hi\x94"), "cp1252")
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "“hi”", string(out))
	})
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name     string
		sample   string
		expected rune
	}{
		{"comma", "name,phone,email\n", ','},
		{"semicolon", "name;phone;email\n", ';'},
		{"tab", "name\tphone\temail\n", '\t'},
		{"pipe", "name|phone|email\n", '|'},
		{"defaults to comma", "singlecolumn\n", ','},
		{"empty defaults to comma", "", ','},
		{"skips leading blank lines", "\n\nname;phone\n", ';'},
		{"comma wins ties", "a,b;c,d;e\n", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDelimiter([]byte(tt.sample)))
		})
	}
}

func TestStripBOM(t *testing.T) {
	assert.Equal(t, "name", StripBOM("\uFEFFname"))
	assert.Equal(t, "name", StripBOM("name"))
	assert.Equal(t, "", StripBOM("\uFEFF"))
}
