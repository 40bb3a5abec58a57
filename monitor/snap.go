package monitor

import (
	"image"
	"strings"
	"termos/device/video/console"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const (
	screenColumns = 80
	screenRows    = 25

	cellWidth  = 7
	cellHeight = 13
)

// ScreenText returns the rows of a text-mode video buffer with trailing
// blanks removed. Trailing empty rows are dropped.
func ScreenText(video []byte) []string {
	rows := make([]string, 0, screenRows)
	for y := 0; y < screenRows; y++ {
		var sb strings.Builder
		for x := 0; x < screenColumns; x++ {
			off := 2 * (y*screenColumns + x)
			if off >= len(video) {
				break
			}
			ch := video[off]
			if ch == 0 {
				ch = ' '
			}
			sb.WriteByte(ch)
		}
		rows = append(rows, strings.TrimRight(sb.String(), " "))
	}

	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows
}

// Render draws a text-mode video buffer with the 7x13 fixed font.
func Render(video []byte) image.Image {
	dc := gg.NewContext(screenColumns*cellWidth, screenRows*cellHeight)
	dc.SetFontFace(basicfont.Face7x13)

	ascent := float64(basicfont.Face7x13.Ascent)
	for y := 0; y < screenRows; y++ {
		for x := 0; x < screenColumns; x++ {
			off := 2 * (y*screenColumns + x)
			if off+1 >= len(video) {
				continue
			}
			ch, attr := video[off], video[off+1]
			fg, bg := console.CellColors(attr)

			px, py := float64(x*cellWidth), float64(y*cellHeight)
			dc.SetColor(bg)
			dc.DrawRectangle(px, py, cellWidth, cellHeight)
			dc.Fill()

			if ch > ' ' && ch < 0x7f {
				dc.SetColor(fg)
				dc.DrawString(string(rune(ch)), px, py+ascent)
			}
		}
	}
	return dc.Image()
}

// SavePNG renders a video buffer to a PNG file.
func SavePNG(path string, video []byte) error {
	return gg.SavePNG(path, Render(video))
}
