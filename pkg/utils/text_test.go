package utils

import "testing"

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("ñandú día", 5); got != "ñandú..." {
		t.Errorf("multibyte truncate got %q", got)
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		pos    int
		radius int
		want   string
	}{
		{"whole text", "short note", 0, 50, "short note"},
		{"cut both ends", "aaaa bbbb cccc", 5, 3, "...aa bbb..."},
		{"cut end only", "pain reported\nin  knee today", 0, 16, "pain reported in..."},
		{"bad offset", "abc", 99, 10, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Snippet(tt.s, tt.pos, tt.radius); got != tt.want {
				t.Errorf("Snippet(%q, %d, %d) = %q, want %q", tt.s, tt.pos, tt.radius, got, tt.want)
			}
		})
	}
}
