package portal

import "strings"

// Slot positions in Skeleton
const (
	SlotTitle   = 1
	SlotHeading = 7
	SlotPayload = 8
	SlotBody    = 9
	SlotFooter  = 10
)

// Skeleton is the boilerplate every page is rendered from.
var Skeleton = []string{
	"<html><head><title>",
	"joinme",
	"</title>\n",
	"<meta charset='utf-8'>",
	"<meta name='viewport' content='width=device-width, initial-scale=1.0'>\n",
	"<style>body{background:#FFF; color: #000; font-family: sans-serif; font-size: 150%;}</style>\n",
	"</head><body>\n",
	"<h2>Welcome to joinme!</h2>\n",
	"<!-- page payload -->\n",
	"<!-- page body -->\n",
	"\n<p><a href='/'>Home</a>&nbsp;&nbsp;&nbsp;</p>\n",
	"</body></html>\n\n",
}

// Replacement substitutes Text for the skeleton string at Position.
type Replacement struct {
	Position int
	Text     string
}

// Render concatenates boiler, taking each string from repls instead when a
// replacement names its position. repls must be in strictly increasing
// Position order; a replacement that is out of order or beyond the end of
// boiler is never applied.
func Render(boiler []string, repls []Replacement) string {
	var b strings.Builder
	j := 0
	for i, s := range boiler {
		if j < len(repls) && repls[j].Position == i {
			b.WriteString(repls[j].Text)
			j++
			continue
		}
		b.WriteString(s)
	}
	return b.String()
}
