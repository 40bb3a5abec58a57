package console

import "image/color"

// Palette holds the RGB values of the 16 text-mode attributes.
var Palette = [16]color.RGBA{
	{R: 0, G: 0, B: 0, A: 255},       // black
	{R: 0, G: 0, B: 128, A: 255},     // blue
	{R: 0, G: 128, B: 0, A: 255},     // green
	{R: 0, G: 128, B: 128, A: 255},   // cyan
	{R: 128, G: 0, B: 0, A: 255},     // red
	{R: 128, G: 0, B: 128, A: 255},   // magenta
	{R: 128, G: 64, B: 0, A: 255},    // brown
	{R: 192, G: 192, B: 192, A: 255}, // light gray
	{R: 128, G: 128, B: 128, A: 255}, // dark gray
	{R: 0, G: 0, B: 255, A: 255},     // light blue
	{R: 0, G: 255, B: 0, A: 255},     // light green
	{R: 0, G: 255, B: 255, A: 255},   // light cyan
	{R: 255, G: 0, B: 0, A: 255},     // light red
	{R: 255, G: 0, B: 255, A: 255},   // light magenta
	{R: 255, G: 255, B: 0, A: 255},   // yellow
	{R: 255, G: 255, B: 255, A: 255}, // white
}

// CellColors returns the foreground and background colour of a cell with
// attribute byte attr. The blink bit is ignored.
func CellColors(attr byte) (fg, bg color.RGBA) {
	return Palette[attr&0x0f], Palette[(attr>>4)&0x07]
}
