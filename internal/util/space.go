package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight pads str with spaces to the given display width, truncating with
// an ellipsis when it is too wide. Width is measured in terminal cells so
// wide runes in peer names keep the in-call card columns aligned.
func PadRight(str string, width int) string {
	w := runewidth.StringWidth(str)
	if w > width {
		return runewidth.Truncate(str, width, "...")
	}
	return str + strings.Repeat(" ", width-w)
}
