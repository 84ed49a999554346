package pdf

import (
	"strconv"
)

// textShow is one text-showing operation (Tj, ', ", or a string element of
// a TJ array) recovered from a page content stream.
type textShow struct {
	text     string  // decoded string contents
	litStart int     // byte offset of the string token in the stream, inclusive
	litEnd   int     // byte offset past the closing delimiter
	x, y     float64 // baseline origin in page space
	fontSize float64 // active Tf size, 0 when never set
}

// avgGlyphWidth approximates glyph advance as a fraction of the font size.
// Good enough for bounding boxes over Latin body text; rotated or exotic
// glyph runs get an approximate box, which the format accepts.
const avgGlyphWidth = 0.5

// defaultFontSize is assumed when a show carries no usable Tf size.
const defaultFontSize = 11

// advance returns the approximate width of s at the given font size.
func advance(s string, size float64) float64 {
	if size <= 0 {
		size = defaultFontSize
	}
	return float64(len([]rune(s))) * avgGlyphWidth * size
}

// token kinds produced by the content tokenizer.
const (
	tkNumber = iota
	tkString // literal () or hex <> string
	tkName
	tkArrayOpen
	tkArrayClose
	tkDictOpen
	tkDictClose
	tkOperator
)

type token struct {
	kind  int
	num   float64
	str   string // decoded string for tkString, raw text for tkName/tkOperator
	start int    // byte offset in stream
	end   int    // byte offset past the token
}

// tokenize splits a decoded content stream into PDF syntax tokens.
// It is lenient: anything unparseable is skipped rather than failing the
// page, matching the engine's skip-and-continue redaction policy.
func tokenize(b []byte) []token {
	var toks []token
	i := 0
	n := len(b)
	for i < n {
		c := b[i]
		switch {
		case isWhitespace(c):
			i++
		case c == '%': // comment to end of line
			for i < n && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		case c == '(':
			start := i
			s, next := decodeLiteral(b, i)
			toks = append(toks, token{kind: tkString, str: s, start: start, end: next})
			i = next
		case c == '<' && i+1 < n && b[i+1] == '<':
			toks = append(toks, token{kind: tkDictOpen, start: i, end: i + 2})
			i += 2
		case c == '<':
			start := i
			s, next := decodeHexString(b, i)
			toks = append(toks, token{kind: tkString, str: s, start: start, end: next})
			i = next
		case c == '>' && i+1 < n && b[i+1] == '>':
			toks = append(toks, token{kind: tkDictClose, start: i, end: i + 2})
			i += 2
		case c == '[':
			toks = append(toks, token{kind: tkArrayOpen, start: i, end: i + 1})
			i++
		case c == ']':
			toks = append(toks, token{kind: tkArrayClose, start: i, end: i + 1})
			i++
		case c == '/':
			start := i
			i++
			for i < n && !isDelimiter(b[i]) && !isWhitespace(b[i]) {
				i++
			}
			toks = append(toks, token{kind: tkName, str: string(b[start+1 : i]), start: start, end: i})
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < n && (b[i] == '.' || (b[i] >= '0' && b[i] <= '9')) {
				i++
			}
			f, err := strconv.ParseFloat(string(b[start:i]), 64)
			if err == nil {
				toks = append(toks, token{kind: tkNumber, num: f, start: start, end: i})
			}
		default:
			start := i
			for i < n && !isDelimiter(b[i]) && !isWhitespace(b[i]) {
				i++
			}
			if i == start { // lone delimiter we do not care about
				i++
				continue
			}
			toks = append(toks, token{kind: tkOperator, str: string(b[start:i]), start: start, end: i})
		}
	}
	return toks
}

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// decodeLiteral decodes a () string literal starting at b[i] == '('.
// Returns the decoded string and the offset past the closing ')'.
func decodeLiteral(b []byte, i int) (string, int) {
	var out []byte
	depth := 1
	i++ // consume '('
	n := len(b)
	for i < n && depth > 0 {
		c := b[i]
		switch c {
		case '\\':
			i++
			if i >= n {
				break
			}
			e := b[i]
			switch e {
			case 'n':
				out = append(out, '\n')
				i++
			case 'r':
				out = append(out, '\r')
				i++
			case 't':
				out = append(out, '\t')
				i++
			case 'b':
				out = append(out, '\b')
				i++
			case 'f':
				out = append(out, '\f')
				i++
			case '(', ')', '\\':
				out = append(out, e)
				i++
			case '\r':
				i++ // line continuation
				if i < n && b[i] == '\n' {
					i++
				}
			case '\n':
				i++ // line continuation
			default:
				if e >= '0' && e <= '7' {
					v := 0
					for k := 0; k < 3 && i < n && b[i] >= '0' && b[i] <= '7'; k++ {
						v = v*8 + int(b[i]-'0')
						i++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
					i++
				}
			}
		case '(':
			depth++
			out = append(out, c)
			i++
		case ')':
			depth--
			if depth > 0 {
				out = append(out, c)
			}
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out), i
}

// decodeHexString decodes a <...> hex string starting at b[i] == '<'.
func decodeHexString(b []byte, i int) (string, int) {
	var out []byte
	i++ // consume '<'
	n := len(b)
	var hi = -1
	for i < n && b[i] != '>' {
		c := b[i]
		v := hexVal(c)
		if v >= 0 {
			if hi < 0 {
				hi = v
			} else {
				out = append(out, byte(hi*16+v))
				hi = -1
			}
		}
		i++
	}
	if hi >= 0 { // odd digit count: trailing zero nibble
		out = append(out, byte(hi*16))
	}
	if i < n {
		i++ // consume '>'
	}
	return string(out), i
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// encodeLiteral renders s as a () string literal with required escapes.
func encodeLiteral(s string) []byte {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '(')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return append(out, ')')
}

// interpret walks the tokens of one page content stream and recovers every
// text show with its approximate position and active font size.
//
// The text state model is simplified: translation from Td/TD/Tm/T* is
// tracked, rotation and skew are not (their shows get a best-effort box).
func interpret(content []byte) []textShow {
	toks := tokenize(content)
	var shows []textShow

	var (
		fontSize     float64
		leading      float64
		lineX, lineY float64
		curX, curY   float64
		operands     []token
		inArray      bool
		arrayItems   []token
	)

	flushShow := func(t token) {
		size := fontSize
		if size <= 0 {
			size = defaultFontSize
		}
		shows = append(shows, textShow{
			text:     t.str,
			litStart: t.start,
			litEnd:   t.end,
			x:        curX,
			y:        curY,
			fontSize: size,
		})
		curX += advance(t.str, size)
	}

	for _, t := range toks {
		switch t.kind {
		case tkArrayOpen:
			inArray = true
			arrayItems = arrayItems[:0]
		case tkArrayClose:
			inArray = false
		case tkNumber, tkString, tkName:
			if inArray {
				arrayItems = append(arrayItems, t)
			} else {
				operands = append(operands, t)
			}
		case tkDictOpen, tkDictClose:
			// dicts only appear in operands we ignore (BDC etc.)
		case tkOperator:
			switch t.str {
			case "BT":
				lineX, lineY, curX, curY = 0, 0, 0, 0
			case "Tf":
				if len(operands) >= 1 && operands[len(operands)-1].kind == tkNumber {
					fontSize = operands[len(operands)-1].num
				}
			case "TL":
				if len(operands) >= 1 && operands[len(operands)-1].kind == tkNumber {
					leading = operands[len(operands)-1].num
				}
			case "Td", "TD":
				if tx, ty, ok := lastTwoNumbers(operands); ok {
					lineX += tx
					lineY += ty
					curX, curY = lineX, lineY
					if t.str == "TD" {
						leading = -ty
					}
				}
			case "Tm":
				if len(operands) >= 6 {
					nums := numbersOf(operands)
					if len(nums) >= 6 {
						lineX, lineY = nums[len(nums)-2], nums[len(nums)-1]
						curX, curY = lineX, lineY
					}
				}
			case "T*":
				lineY -= leading
				curX, curY = lineX, lineY
			case "Tj":
				if s, ok := lastString(operands); ok {
					flushShow(s)
				}
			case "'":
				lineY -= leading
				curX, curY = lineX, lineY
				if s, ok := lastString(operands); ok {
					flushShow(s)
				}
			case "\"":
				lineY -= leading
				curX, curY = lineX, lineY
				if s, ok := lastString(operands); ok {
					flushShow(s)
				}
			case "TJ":
				for _, it := range arrayItemsCopy(arrayItems) {
					switch it.kind {
					case tkString:
						flushShow(it)
					case tkNumber:
						size := fontSize
						if size <= 0 {
							size = defaultFontSize
						}
						curX -= it.num / 1000 * size
					}
				}
				arrayItems = arrayItems[:0]
			case "BI":
				// inline image data is opaque; positions resume at EI,
				// which the tokenizer surfaces as ordinary operators
			}
			operands = operands[:0]
		}
	}
	return shows
}

func lastTwoNumbers(ops []token) (float64, float64, bool) {
	nums := numbersOf(ops)
	if len(nums) < 2 {
		return 0, 0, false
	}
	return nums[len(nums)-2], nums[len(nums)-1], true
}

func numbersOf(ops []token) []float64 {
	var nums []float64
	for _, o := range ops {
		if o.kind == tkNumber {
			nums = append(nums, o.num)
		}
	}
	return nums
}

func lastString(ops []token) (token, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].kind == tkString {
			return ops[i], true
		}
	}
	return token{}, false
}

func arrayItemsCopy(items []token) []token {
	out := make([]token, len(items))
	copy(out, items)
	return out
}
