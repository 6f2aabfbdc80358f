// Package term provides the plain-text terminal emulation used by the shell
// supervisor: a cursor over a growable vector of lines, fed raw PTY output,
// producing the screen content with ANSI sequences stripped.
package term

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type cursor struct {
	row, col           int
	savedRow, savedCol int
}

func (c *cursor) save()    { c.savedRow, c.savedCol = c.row, c.col }
func (c *cursor) restore() { c.row, c.col = c.savedRow, c.savedCol }

func (c *cursor) left(n int) {
	if n > c.col {
		c.col = 0
	} else {
		c.col -= n
	}
}

func (c *cursor) up(n int) {
	if n > c.row {
		c.row = 0
	} else {
		c.row -= n
	}
}

// Buffer emulates a terminal screen as lines of runes. Columns are rune
// positions; writes beyond end-of-line extend the line, writes beyond the
// cursor column pad with spaces.
type Buffer struct {
	lines []([]rune)
	cur   cursor
}

func NewBuffer() *Buffer {
	return &Buffer{lines: [][]rune{nil}}
}

func (b *Buffer) ensureLine(row int) {
	for len(b.lines) <= row {
		b.lines = append(b.lines, nil)
	}
}

func (b *Buffer) line(row int) []rune {
	b.ensureLine(row)
	return b.lines[row]
}

func (b *Buffer) setLine(row int, line []rune) {
	b.ensureLine(row)
	b.lines[row] = line
}

func (b *Buffer) insertRune(ch rune) {
	row, col := b.cur.row, b.cur.col
	line := b.line(row)
	for len(line) < col {
		line = append(line, ' ')
	}
	if col < len(line) {
		line[col] = ch
	} else {
		line = append(line, ch)
	}
	b.setLine(row, line)
	b.cur.col++
}

func (b *Buffer) backspace() {
	if b.cur.col == 0 {
		return
	}
	col := b.cur.col - 1
	line := b.line(b.cur.row)
	if col < len(line) {
		b.setLine(b.cur.row, append(line[:col], line[col+1:]...))
	}
	b.cur.left(1)
}

func (b *Buffer) clampColToLine() {
	if n := len(b.line(b.cur.row)); b.cur.col > n {
		b.cur.col = n
	}
}

// Feed interprets a chunk of PTY output. Invalid UTF-8 degrades to per-byte
// processing for the offending bytes; multi-byte runes split across chunks
// are not reassembled (the shell writes lines, not split runes, in practice).
func (b *Buffer) Feed(data []byte) {
	i := 0
	for i < len(data) {
		if data[i] == 0x1b {
			if next := b.consumeEscape(data, i); next > i {
				i = next
				continue
			}
			i++
			continue
		}
		ch, size := utf8.DecodeRune(data[i:])
		if ch == utf8.RuneError && size == 1 {
			// Invalid byte: skip it rather than corrupt the line.
			i++
			continue
		}
		b.feedRune(ch)
		i += size
	}
}

func (b *Buffer) feedRune(ch rune) {
	switch {
	case ch == '\b':
		b.backspace()
	case ch == '\r':
		b.cur.col = 0
	case ch == '\n':
		b.cur.row++
		b.cur.col = 0
		b.ensureLine(b.cur.row)
	case ch == 0x07 || ch == 0x00:
		// BEL and NUL are noise.
	case unicode.IsControl(ch):
		// Other controls are ignored.
	default:
		b.insertRune(ch)
	}
}

// consumeEscape parses an escape sequence starting at data[i] (which must be
// ESC) and returns the index just past it. OSC sequences are discarded; CSI
// sequences are interpreted. Returns i when the byte is not ESC.
func (b *Buffer) consumeEscape(data []byte, i int) int {
	if i >= len(data) || data[i] != 0x1b {
		return i
	}
	i++

	// OSC: ESC ] ... BEL or ESC ] ... ESC \
	if i < len(data) && data[i] == ']' {
		i++
		for i < len(data) {
			if data[i] == 0x07 {
				return i + 1
			}
			if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '\\' {
				return i + 2
			}
			i++
		}
		return i
	}

	// CSI: ESC [ params terminator
	if i >= len(data) || data[i] != '[' {
		return i
	}
	i++
	if i < len(data) && data[i] == '?' {
		i++
	}

	var params []int
	cur := ""
	for i < len(data) {
		c := data[i]
		if c >= '0' && c <= '9' {
			cur += string(c)
		} else if c == ';' {
			params = append(params, atoiDefault(cur))
			cur = ""
		} else {
			break
		}
		i++
	}
	if cur != "" {
		params = append(params, atoiDefault(cur))
	}
	if i >= len(data) {
		return i
	}
	b.applyCSI(data[i], params)
	return i + 1
}

func atoiDefault(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func param(params []int, idx, def int) int {
	if idx < len(params) {
		return params[idx]
	}
	return def
}

func (b *Buffer) applyCSI(terminator byte, params []int) {
	switch terminator {
	case 'D':
		b.cur.left(max1(param(params, 0, 1)))
	case 'C':
		b.cur.col += max1(param(params, 0, 1))
	case 'A':
		b.cur.up(max1(param(params, 0, 1)))
		b.clampColToLine()
	case 'B':
		b.cur.row += max1(param(params, 0, 1))
		b.ensureLine(b.cur.row)
		b.clampColToLine()
	case 's':
		b.cur.save()
	case 'u':
		b.cur.restore()
	case 'K':
		b.eraseLine(param(params, 0, 0))
	case 'J':
		b.eraseDisplay(param(params, 0, 0))
	case 'H':
		row := param(params, 0, 1)
		if row == 0 {
			row = 1
		}
		var col int
		switch {
		case len(params) >= 2:
			col = params[1]
			if col == 0 {
				col = 1
			}
		case len(params) == 1:
			col = b.cur.col + 1 // column unspecified: keep current
		default:
			col = 1
		}
		b.cur.row, b.cur.col = row-1, col-1
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (b *Buffer) eraseLine(mode int) {
	line := b.line(b.cur.row)
	switch mode {
	case 0: // cursor to end of line
		if b.cur.col < len(line) {
			b.setLine(b.cur.row, line[:b.cur.col])
		}
	case 1: // start of line to cursor
		if b.cur.col < len(line) {
			b.setLine(b.cur.row, append([]rune(nil), line[b.cur.col:]...))
		} else {
			b.setLine(b.cur.row, nil)
		}
		b.cur.col = 0
	case 2: // whole line
		b.setLine(b.cur.row, nil)
		b.cur.col = 0
	}
}

func (b *Buffer) eraseDisplay(mode int) {
	switch mode {
	case 0: // cursor to end of screen
		b.eraseLine(0)
		b.lines = b.lines[:b.cur.row+1]
	case 1: // start of screen to cursor
		line := b.line(b.cur.row)
		if b.cur.col < len(line) {
			b.setLine(b.cur.row, append([]rune(nil), line[b.cur.col:]...))
		} else {
			b.setLine(b.cur.row, nil)
		}
		b.lines = b.lines[b.cur.row:]
		b.cur.row = 0
	case 2: // whole screen
		b.lines = [][]rune{nil}
		b.cur = cursor{}
	}
}

// Output returns the emulated screen: all lines joined with "\n".
func (b *Buffer) Output() string {
	parts := make([]string, len(b.lines))
	for i, line := range b.lines {
		parts[i] = string(line)
	}
	return strings.Join(parts, "\n")
}

// Clear resets the buffer to a single empty line with the cursor at origin.
func (b *Buffer) Clear() {
	b.lines = [][]rune{nil}
	b.cur = cursor{}
}
