package portal

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		boiler []string
		repls  []Replacement
		want   string
	}{
		{
			name:   "single replacement",
			boiler: []string{"A", "B", "C"},
			repls:  []Replacement{{1, "X"}},
			want:   "AXC",
		},
		{
			name:   "no replacements",
			boiler: []string{"A", "B", "C"},
			want:   "ABC",
		},
		{
			name:   "first and last",
			boiler: []string{"A", "B", "C"},
			repls:  []Replacement{{0, "X"}, {2, "Z"}},
			want:   "XBZ",
		},
		{
			name:   "empty replacement removes slot",
			boiler: []string{"A", "B", "C"},
			repls:  []Replacement{{1, ""}},
			want:   "AC",
		},
		{
			name:   "out of order stops substitution",
			boiler: []string{"A", "B", "C"},
			repls:  []Replacement{{2, "Z"}, {0, "X"}},
			want:   "ABZ",
		},
		{
			name:   "position past end ignored",
			boiler: []string{"A", "B"},
			repls:  []Replacement{{5, "X"}},
			want:   "AB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.boiler, tt.repls); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_PreservesSkeletonOrder(t *testing.T) {
	page := Render(Skeleton, []Replacement{
		{SlotTitle, "TITLE"},
		{SlotHeading, "HEADING"},
		{SlotBody, "BODY"},
	})

	order := []string{"<title>", "TITLE", "</title>", "HEADING", "<!-- page payload -->", "BODY", "Home", "</html>"}
	pos := 0
	for _, s := range order {
		i := strings.Index(page[pos:], s)
		if i < 0 {
			t.Fatalf("%q missing or out of order in %q", s, page)
		}
		pos += i + len(s)
	}
	if strings.Contains(page, "Welcome to joinme") {
		t.Error("replaced heading still present")
	}
}
