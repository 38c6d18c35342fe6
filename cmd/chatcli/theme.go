package main

import "github.com/gdamore/tcell/v2"

// Colors - Midnight Commander style.
var (
	colorBg        = tcell.NewRGBColor(0, 0, 128)     // Dark blue background
	colorFg        = tcell.NewRGBColor(192, 192, 192) // Light gray text
	colorBorder    = tcell.NewRGBColor(0, 255, 255)   // Cyan borders
	colorTitle     = tcell.NewRGBColor(255, 255, 255) // White titles
	colorHighlight = tcell.NewRGBColor(0, 255, 255)   // Cyan highlight
	colorAccent    = tcell.NewRGBColor(0, 128, 128)   // Teal selections and bars
	colorField     = tcell.NewRGBColor(0, 0, 64)      // Input field background
)
