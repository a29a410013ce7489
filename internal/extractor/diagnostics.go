package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

// maxDiagnosticsLen caps how much subprocess chatter is carried on an outcome.
const maxDiagnosticsLen = 4000

// Diagnostics holds advisory metadata scraped from the extractor's stdout.
// Nothing downstream depends on these fields for correctness.
type Diagnostics struct {
	Raw        string
	PageCount  *int
	TableCount int
	Method     string
}

var (
	pagesLinePattern   = regexp.MustCompile(`(?i)pages?:\s*([0-9,]+)`)
	pageMarkerPattern  = regexp.MustCompile(`--- Page (\d+) ---`)
	tableMarkerPattern = regexp.MustCompile(`--- Table \d+ ---`)
	methodPattern      = regexp.MustCompile(`(?i)method:\s*(.+)`)
)

// parseDiagnostics scrapes page count, table count and extraction method from
// the subprocess output using simple pattern extraction.
func parseDiagnostics(out string) Diagnostics {
	d := Diagnostics{Raw: truncate(strings.TrimSpace(out), maxDiagnosticsLen)}

	if m := pagesLinePattern.FindStringSubmatch(out); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && n > 0 {
			d.PageCount = &n
		}
	}
	if d.PageCount == nil {
		// Fall back to the highest page marker emitted while paging.
		high := 0
		for _, m := range pageMarkerPattern.FindAllStringSubmatch(out, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > high {
				high = n
			}
		}
		if high > 0 {
			d.PageCount = &high
		}
	}

	d.TableCount = len(tableMarkerPattern.FindAllString(out, -1))

	if m := methodPattern.FindStringSubmatch(out); m != nil {
		d.Method = strings.TrimSpace(m[1])
	}

	return d
}

func appendDiagnostic(raw, note string) string {
	if raw == "" {
		return note
	}
	return raw + "\n" + note
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
