package codec

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// Mode selects how pixels become glyph cells.
type Mode int

const (
	// ModeRamp maps luminance onto the ramp glyphs without color.
	ModeRamp Mode = iota
	// ModeRampColor maps luminance onto the ramp glyphs and tints each cell.
	ModeRampColor
	// ModeBlocks picks block-density glyphs by mean brightness and tints each cell.
	ModeBlocks
)

func (m Mode) String() string {
	switch m {
	case ModeRampColor:
		return "ramp+color"
	case ModeBlocks:
		return "blocks"
	default:
		return "ramp"
	}
}

// Colored reports whether cells rendered in this mode carry a palette color.
func (m Mode) Colored() bool {
	return m == ModeRampColor || m == ModeBlocks
}

// ModeFor resolves the CLI switches. Block glyphs need color; without it the
// plain ramp is used.
func ModeFor(color, blocks bool) Mode {
	switch {
	case color && blocks:
		return ModeBlocks
	case color:
		return ModeRampColor
	default:
		return ModeRamp
	}
}

// Ramp glyphs, darkest first.
var rampGlyphs = []rune("·¬°«+±¢®*º¤æ¾%§&¶")

// Block glyphs, solid first.
var blockGlyphs = []rune("█▉▊▋▌▍▎▏ ")

// Frame is one decoded raster plus its ordinal in the source stream.
type Frame struct {
	Image *image.RGBA
	Index int
}

// NewFrame allocates an empty RGBA frame.
func NewFrame(width, height int) Frame {
	return Frame{Image: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Cell is one terminal character with an optional 256-color palette index.
type Cell struct {
	Char    rune
	Color   uint8
	Colored bool
}

// TextFrame is a Cols x Rows grid of cells, row-major.
type TextFrame struct {
	Cols  int
	Rows  int
	Cells []Cell
}

// At returns the cell at col,row or a blank cell when out of range.
func (tf *TextFrame) At(col, row int) Cell {
	if tf == nil || col < 0 || row < 0 || col >= tf.Cols || row >= tf.Rows {
		return Cell{Char: ' '}
	}
	return tf.Cells[row*tf.Cols+col]
}

type cellFunc func(r, g, b uint8) Cell

var cellFuncs = [...]cellFunc{
	ModeRamp: func(r, g, b uint8) Cell {
		return Cell{Char: rampGlyphs[RampIndex(Luminance(r, g, b))]}
	},
	ModeRampColor: func(r, g, b uint8) Cell {
		return Cell{Char: rampGlyphs[RampIndex(Luminance(r, g, b))], Color: RGBToPalette(r, g, b), Colored: true}
	},
	ModeBlocks: func(r, g, b uint8) Cell {
		return Cell{Char: blockGlyphs[BlockIndex(Brightness(r, g, b))], Color: RGBToPalette(r, g, b), Colored: true}
	},
}

// Render stretches frame to cols x rows with a bilinear filter and converts
// every resized pixel into a cell. Aspect ratio is not preserved: terminal
// cells are taller than wide, so the box is filled as given.
func Render(frame Frame, cols, rows int, mode Mode) *TextFrame {
	if frame.Image == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	if mode < ModeRamp || int(mode) >= len(cellFuncs) {
		mode = ModeRamp
	}
	toCell := cellFuncs[mode]

	scaled := resize.Resize(uint(cols), uint(rows), frame.Image, resize.Bilinear)
	b := scaled.Bounds()
	tf := &TextFrame{Cols: cols, Rows: rows, Cells: make([]Cell, cols*rows)}

	if rgba, ok := scaled.(*image.RGBA); ok {
		for y := 0; y < rows && y < b.Dy(); y++ {
			off := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < cols && x < b.Dx(); x++ {
				p := rgba.Pix[off+4*x : off+4*x+3]
				tf.Cells[y*cols+x] = toCell(p[0], p[1], p[2])
			}
		}
		return tf
	}

	for y := 0; y < rows && y < b.Dy(); y++ {
		for x := 0; x < cols && x < b.Dx(); x++ {
			r, g, bl, _ := scaled.At(b.Min.X+x, b.Min.Y+y).RGBA()
			tf.Cells[y*cols+x] = toCell(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return tf
}

// Luminance is the ITU-R 601 grayscale value with fixed-point rounding.
func Luminance(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// Brightness is the truncated mean of the three channels.
func Brightness(r, g, b uint8) uint8 {
	return uint8((uint16(r) + uint16(g) + uint16(b)) / 3)
}

// RampIndex maps a luminance onto the ramp, clamping at the last glyph.
func RampIndex(l uint8) int {
	return minInt(int(l)/9, len(rampGlyphs)-1)
}

// BlockIndex maps a brightness onto the block glyphs, clamping at blank.
func BlockIndex(brightness uint8) int {
	return minInt(int(brightness)/25, len(blockGlyphs)-1)
}

// RampGlyph returns the ramp glyph at index i.
func RampGlyph(i int) rune {
	return rampGlyphs[clampIndex(i, len(rampGlyphs))]
}

// BlockGlyph returns the block glyph at index i.
func BlockGlyph(i int) rune {
	return blockGlyphs[clampIndex(i, len(blockGlyphs))]
}

// RGBToPalette reduces a color to the xterm 6x6x6 cube (indices 16..231).
func RGBToPalette(r, g, b uint8) uint8 {
	return uint8(16 + 36*cubeLevel(r) + 6*cubeLevel(g) + cubeLevel(b))
}

func cubeLevel(c uint8) int {
	return int(math.Round(float64(c) * 5 / 255))
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
