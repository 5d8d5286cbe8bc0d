// Package color picks stable terminal colours for identifiers so the same
// project, sprint or issue type always renders the same way.
package color

import (
	"hash/fnv"

	"github.com/fatih/color"
)

var palette = []color.Attribute{
	color.FgHiRed,
	color.FgHiGreen,
	color.FgHiYellow,
	color.FgHiBlue,
	color.FgHiMagenta,
	color.FgHiCyan,
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
}

// Enabled reports whether output is coloured. fatih/color already honours
// NO_COLOR and non-terminal stdout.
func Enabled() bool {
	return !color.NoColor
}

// ForKey returns the colour assigned to key.
func ForKey(key string) *color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return color.New(palette[int(h.Sum32()%uint32(len(palette)))])
}

// Tag renders key in its colour inside brackets.
func Tag(key string) string {
	return ForKey(key).Sprintf("[%s]", key)
}

var (
	Header  = color.New(color.Bold, color.Underline)
	Muted   = color.New(color.Faint)
	Warn    = color.New(color.FgYellow)
	Failure = color.New(color.FgRed, color.Bold)
	Added   = color.New(color.FgGreen)
	Removed = color.New(color.FgRed)
)
