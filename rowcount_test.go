package veloxcsv

import (
	"strings"
	"testing"
)

func TestCountRows(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single line no trailing newline", "a,b,c", 1},
		{"single line with trailing newline", "a,b,c\n", 1},
		{"two lines no trailing newline", "a,b\nc,d", 2},
		{"two lines with trailing newline", "a,b\nc,d\n", 2},
		{"only newlines", "\n\n\n", 3},
		{"long input crossing 8-byte lanes", strings.Repeat("field,value\n", 100), 100},
		{"long input no trailing newline", strings.Repeat("field,value\n", 100) + "tail", 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountRows([]byte(tt.input))
			if got != tt.want {
				t.Errorf("CountRows(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCountRowsReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"trailing newline", "a\nb\nc\n", 3},
		{"no trailing newline", "a\nb\nc", 3},
		{"spans multiple 64KB buffers", strings.Repeat("x", 70000) + "\n" + strings.Repeat("y", 70000) + "\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountRowsReader(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("CountRowsReader error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CountRowsReader(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestCountRows_MatchesCountRowsReader(t *testing.T) {
	input := strings.Repeat("a,b,c\n", 500) + "trailing,no,newline"
	want := CountRows([]byte(input))
	got, err := CountRowsReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("CountRowsReader error: %v", err)
	}
	if got != want {
		t.Errorf("CountRowsReader = %d, CountRows = %d", got, want)
	}
}
