package util

import "fmt"

// FormatDuration renders elapsed whole seconds as zero-padded MM:SS.
// Minutes grow past two digits unbounded; a call that long is still a call.
func FormatDuration(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	m := totalSeconds / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
