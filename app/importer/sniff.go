package importer

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sniffSampleSize is how many bytes are read to detect encoding and delimiter
const sniffSampleSize = 8192

// candidateDelimiters in priority order; comma wins ties
var candidateDelimiters = []rune{',', '\t', '|', ';'}

// DetectEncoding picks the first encoding in the fallback chain that decodes
// the sample. UTF-8 is preferred; legacy single-byte encodings accept any
// byte sequence, so the chain terminates at latin1.
func DetectEncoding(sample []byte) string {
	if utf8.Valid(sample) {
		return "utf-8"
	}
	return "latin1"
}

// DecodingReader wraps r with a decoder for the given encoding name. The
// returned reader yields UTF-8.
func DecodingReader(r io.Reader, encoding string) io.Reader {
	switch encoding {
	case "latin1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	case "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder())
	default:
		return r
	}
}

// DetectDelimiter counts candidate delimiters on the first non-empty line
// of the sample and returns the most frequent one, defaulting to comma.
func DetectDelimiter(sample []byte) rune {
	scanner := bufio.NewScanner(strings.NewReader(string(sample)))
	var line string
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			line = scanner.Text()
			break
		}
	}
	if line == "" {
		return ','
	}

	best := ','
	bestCount := 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best = d
			bestCount = n
		}
	}
	return best
}

// StripBOM removes a UTF-8 byte order mark from the first header cell.
func StripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
