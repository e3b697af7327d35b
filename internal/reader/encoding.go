package reader

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// probe is one entry in the ordered encoding detection list.
type probe struct {
	name   string
	decode func([]byte) (string, bool)
}

// probes is the documented detection order. The expected encodings are
// disjoint on common byte patterns, so the first decoding that holds up
// wins. Latin-1 accepts any byte sequence, which makes the NUL guard in
// decodeWith the effective rejection path for binary input.
var probes = []probe{
	{"utf-8", decodeUTF8},
	{"utf-8-bom", decodeUTF8BOM},
	{"gb18030", transformer(simplifiedchinese.GB18030)},
	{"gbk", transformer(simplifiedchinese.GBK)},
	{"gb2312", transformer(simplifiedchinese.HZGB2312)},
	{"latin-1", transformer(charmap.ISO8859_1)},
}

// decodeText runs the ordered probe list and returns the decoded text and
// the name of the encoding that succeeded.
func decodeText(data []byte) (string, string, bool) {
	for _, p := range probes {
		if text, ok := p.decode(data); ok {
			return text, p.name, true
		}
	}
	return "", "", false
}

func decodeUTF8(data []byte) (string, bool) {
	if bytes.HasPrefix(data, utf8BOM) {
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}
	return acceptText(string(data))
}

func decodeUTF8BOM(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, utf8BOM) {
		return "", false
	}
	rest := data[len(utf8BOM):]
	if !utf8.Valid(rest) {
		return "", false
	}
	return acceptText(string(rest))
}

// transformer wraps an x/text encoding as a probe step. The decoders
// substitute invalid sequences instead of failing, so a replacement rune in
// the output rejects the probe alongside any decoder error.
func transformer(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(data []byte) (string, bool) {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		text := string(decoded)
		if strings.ContainsRune(text, utf8.RuneError) {
			return "", false
		}
		return acceptText(text)
	}
}

// acceptText applies the shared sanity check: decoded text never contains
// NUL. That catches binary files that byte-permissive encodings such as
// Latin-1 would otherwise pass through as garbage.
func acceptText(text string) (string, bool) {
	if strings.ContainsRune(text, 0) {
		return "", false
	}
	return text, true
}
