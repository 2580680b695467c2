package tokenizer

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// parseLiteral decodes the two literal shapes found in vocabulary files:
// quoted text ('..' / "..") whose code points are UTF-8 encoded, and byte
// strings (b'..' / b"..") whose escapes denote raw bytes. Nothing else is
// accepted.
func parseLiteral(s string) ([]byte, error) {
	raw := false
	if len(s) > 0 && (s[0] == 'b' || s[0] == 'B') {
		raw = true
		s = s[1:]
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("literal too short")
	}
	quote := s[0]
	if (quote != '\'' && quote != '"') || s[len(s)-1] != quote {
		return nil, fmt.Errorf("literal %q is not quoted", s)
	}
	body := s[1 : len(s)-1]

	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == quote:
			return nil, fmt.Errorf("unescaped quote at offset %d", i)
		case c != '\\':
			if raw && c >= utf8.RuneSelf {
				return nil, fmt.Errorf("non-ASCII byte 0x%02x in byte string", c)
			}
			out = append(out, c)
			i++
			continue
		}

		if i+1 >= len(body) {
			return nil, fmt.Errorf("trailing backslash")
		}
		esc := body[i+1]
		i += 2
		switch esc {
		case '\\', '\'', '"':
			out = append(out, esc)
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'a':
			out = append(out, 0x07)
		case 'b':
			out = append(out, 0x08)
		case 'f':
			out = append(out, 0x0c)
		case 'v':
			out = append(out, 0x0b)
		case 'x':
			v, n, err := hexEscape(body[i:], 2)
			if err != nil {
				return nil, err
			}
			i += n
			out = appendUnit(out, v, raw)
		case 'u', 'U':
			if raw {
				out = append(out, '\\', esc)
				continue
			}
			width := 4
			if esc == 'U' {
				width = 8
			}
			v, n, err := hexEscape(body[i:], width)
			if err != nil {
				return nil, err
			}
			if v > utf8.MaxRune || (v >= 0xD800 && v <= 0xDFFF) {
				return nil, fmt.Errorf("invalid code point U+%X", v)
			}
			i += n
			out = utf8.AppendRune(out, rune(v))
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := uint32(esc - '0')
			for n := 0; n < 2 && i < len(body) && body[i] >= '0' && body[i] <= '7'; n++ {
				v = v*8 + uint32(body[i]-'0')
				i++
			}
			if raw && v > 0xff {
				return nil, fmt.Errorf("octal escape out of range")
			}
			out = appendUnit(out, v, raw)
		default:
			// Unknown escapes keep their backslash.
			out = append(out, '\\', esc)
		}
	}
	return out, nil
}

// appendUnit appends v as a raw byte for byte strings and as a UTF-8 encoded
// code point for text.
func appendUnit(out []byte, v uint32, raw bool) []byte {
	if raw {
		return append(out, byte(v))
	}
	return utf8.AppendRune(out, rune(v))
}

func hexEscape(s string, width int) (uint32, int, error) {
	if len(s) < width {
		return 0, 0, fmt.Errorf("truncated hex escape")
	}
	v, err := strconv.ParseUint(s[:width], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad hex escape %q", s[:width])
	}
	return uint32(v), width, nil
}
