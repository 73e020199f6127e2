package ui

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/svanichkin/termplay/codec"
)

// Rows below the video: one for subtitles, one for the status line.
const reservedRows = 2

// Subtitles never get closer than this to the screen edges.
const subtitleMargin = 4

// MaxSubtitleLines caps how many wrapped lines of one cue are shown.
const MaxSubtitleLines = 3

const (
	styleReset    = "\x1b[0m"
	styleSubtitle = "\x1b[43m\x1b[30m"
	styleStatus   = "\x1b[1;30m"
	styleBehind   = "\x1b[31m"
	styleOnTime   = "\x1b[32m"
)

// FrameRows is the number of terminal rows available to the video grid.
func FrameRows(rows int) int {
	if rows-reservedRows < 1 {
		return 1
	}
	return rows - reservedRows
}

// Status carries the diagnostic counters shown on the bottom row.
type Status struct {
	Emitted     int
	Total       int
	Dropped     int
	TargetFPS   float64
	MeasuredFPS float64
	Playtime    float64
	Cols        int
	Rows        int
	Sleep       time.Duration
	Behind      bool
}

// Compose builds one screen update: the glyph grid from the top-left corner,
// subtitle lines stacked upward from the row above the status line, and the
// status line on the bottom row. Every row is addressed absolutely, so the
// previous screen never has to be cleared.
func Compose(frame *codec.TextFrame, subtitle []string, status Status, cols, rows int) []byte {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	var out strings.Builder
	out.Grow(cols * rows * 4)
	writeFramePrefix(&out, false)

	frameRows := rows - reservedRows
	if frameRows > 0 {
		writeTextFrame(&out, frame, 1, 1, cols, frameRows)
	}
	if rows > 1 {
		subRow := rows - 1
		clearRow(&out, subRow, cols)
		writeSubtitles(&out, subtitle, subRow, cols)
	}
	writeStatusLine(&out, status, rows, cols)
	return []byte(out.String())
}

func writeFramePrefix(out *strings.Builder, fullClear bool) {
	if fullClear {
		out.WriteString("\x1b[2J\x1b[H")
	} else {
		out.WriteString("\x1b[H")
	}
}

func clearRow(sb *strings.Builder, row, cols int) {
	fmt.Fprintf(sb, "\x1b[%d;1H", row)
	sb.WriteString(strings.Repeat(" ", cols))
}

// writeTextFrame emits the grid row by row. A palette escape is written only
// when the color differs from the previous cell on the same row.
func writeTextFrame(sb *strings.Builder, frame *codec.TextFrame, startRow, startCol, maxCols, maxRows int) {
	if frame == nil || frame.Cols <= 0 || frame.Rows <= 0 {
		return
	}
	cols := min(frame.Cols, maxCols)
	rows := min(frame.Rows, maxRows)

	for r := 0; r < rows; r++ {
		fmt.Fprintf(sb, "\x1b[%d;%dH", startRow+r, startCol)
		colored := false
		var last uint8
		for c := 0; c < cols; c++ {
			cell := frame.At(c, r)
			switch {
			case cell.Colored && (!colored || cell.Color != last):
				sb.WriteString("\x1b[38;5;")
				sb.WriteString(strconv.Itoa(int(cell.Color)))
				sb.WriteByte('m')
				last = cell.Color
				colored = true
			case !cell.Colored && colored:
				sb.WriteString(styleReset)
				colored = false
			}
			ch := cell.Char
			if ch == 0 {
				ch = ' '
			}
			sb.WriteRune(ch)
		}
		if colored {
			sb.WriteString(styleReset)
		}
	}
}

func writeSubtitles(sb *strings.Builder, lines []string, bottomRow, cols int) {
	if len(lines) > MaxSubtitleLines {
		lines = lines[:MaxSubtitleLines]
	}
	for i, line := range lines {
		row := bottomRow - (len(lines) - 1 - i)
		if row < 1 {
			continue
		}
		label := truncateCells(" "+strings.TrimSpace(line)+" ", cols)
		w := cellWidth(label)
		if w == 0 {
			continue
		}
		col := (cols-w)/2 + 1
		fmt.Fprintf(sb, "\x1b[%d;%dH", row, col)
		sb.WriteString(styleSubtitle)
		sb.WriteString(label)
		sb.WriteString(styleReset)
	}
}

// StatusLine returns the status text without styling.
func StatusLine(s Status) string {
	return "stats:" + statusCounter(s) + statusTail(s)
}

func statusCounter(s Status) string {
	return strconv.Itoa(s.Emitted) + "/" + strconv.Itoa(s.Total)
}

func statusTail(s Status) string {
	return fmt.Sprintf("|drops:%d|fps tgt/cur: %s/%.2f|%s|wxh:%dx%d|sl:%.4f",
		s.Dropped,
		strconv.FormatFloat(math.Round(s.TargetFPS*100)/100, 'f', -1, 64),
		s.MeasuredFPS,
		FormatTimer(s.Playtime),
		s.Cols, s.Rows,
		s.Sleep.Seconds(),
	)
}

func writeStatusLine(sb *strings.Builder, s Status, row, cols int) {
	plain := StatusLine(s)
	fmt.Fprintf(sb, "\x1b[%d;1H", row)
	sb.WriteString(styleStatus)
	if runeCount(plain) > cols {
		sb.WriteString(truncateRunes(plain, cols))
		sb.WriteString(styleReset)
		return
	}
	counterStyle := styleOnTime
	if s.Behind {
		counterStyle = styleBehind
	}
	sb.WriteString("stats:")
	sb.WriteString(counterStyle)
	sb.WriteString(strconv.Itoa(s.Emitted))
	sb.WriteString(styleStatus)
	sb.WriteString("/" + strconv.Itoa(s.Total))
	sb.WriteString(statusTail(s))
	if pad := cols - runeCount(plain); pad > 0 {
		sb.WriteString(strings.Repeat(" ", pad))
	}
	sb.WriteString(styleReset)
}

// FormatTimer renders stream seconds as MM:SS.ss, with an H: prefix from the
// first hour on.
func FormatTimer(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int64(math.Round(seconds * 100))
	h := cs / 360000
	m := cs / 6000 % 60
	s := float64(cs%6000) / 100
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%05.2f", h, m, s)
	}
	return fmt.Sprintf("%02d:%05.2f", m, s)
}

// WrapSubtitle splits cue text on its own line breaks, then word-wraps each
// line to termWidth minus the margin. Words wider than the limit are split.
// At most maxLines lines are returned; maxLines <= 0 means no limit.
func WrapSubtitle(text string, termWidth, maxLines int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	limit := termWidth - subtitleMargin
	if limit < 1 {
		limit = 1
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		cur := ""
		for _, word := range strings.Fields(line) {
			for cellWidth(word) > limit {
				if cur != "" {
					out = append(out, cur)
					cur = ""
				}
				head, rest := splitCells(word, limit)
				out = append(out, head)
				word = rest
			}
			switch {
			case word == "":
			case cur == "":
				cur = word
			case cellWidth(cur)+1+cellWidth(word) <= limit:
				cur += " " + word
			default:
				out = append(out, cur)
				cur = word
			}
		}
		if cur != "" {
			out = append(out, cur)
		}
	}
	if maxLines > 0 && len(out) > maxLines {
		out = out[:maxLines]
	}
	return out
}

// runeWidth is the number of terminal cells r occupies.
func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func cellWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}
	return n
}

// splitCells cuts s after at most limit cells, always taking at least one rune.
func splitCells(s string, limit int) (string, string) {
	n := 0
	for i, r := range s {
		w := runeWidth(r)
		if n+w > limit && i > 0 {
			return s[:i], s[i:]
		}
		n += w
	}
	return s, ""
}

func truncateCells(s string, limit int) string {
	if cellWidth(s) <= limit {
		return s
	}
	head, _ := splitCells(s, limit)
	if cellWidth(head) > limit {
		return ""
	}
	return head
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return string(runes[:1])
	}
	return string(runes[:limit-1]) + "…"
}

func runeCount(s string) int {
	return len([]rune(s))
}
