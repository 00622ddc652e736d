package util

import (
	"strings"
	"testing"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		{"Empty string", "", 5, "     "},
		{"Short string", "abc", 10, "abc       "},
		{"Exact width", "hello", 5, "hello"},
		{"String too long", "this is a very long string", 10, "this is..."},
		{"Tiny width", "hello", 3, "..."},
		{"Wide characters", "你好", 8, "你好    "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PadRight(tt.str, tt.width)
			if result != tt.expected {
				t.Errorf("PadRight(%q, %d) = %q, expected %q", tt.str, tt.width, result, tt.expected)
			}
		})
	}
}

func TestPadRightTruncation(t *testing.T) {
	long := strings.Repeat("a", 100)
	result := PadRight(long, 10)
	if !strings.HasSuffix(result, "...") {
		t.Errorf("Expected truncated result ending with '...', got %q", result)
	}
}
