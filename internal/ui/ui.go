package ui

import "embed"

// FS holds the HTML templates rendered by the panel.
//
//go:embed templates/*.html
var FS embed.FS
