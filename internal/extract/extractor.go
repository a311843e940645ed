// Package extract turns raw basis-report text into a structured report record
// using ordered text-pattern rules. Matching is case-insensitive and
// line-oriented; absent fields stay empty, extraction itself never fails.
package extract

import (
	"regexp"
	"strings"

	"github.com/basisfind/basisfind/internal/report"
)

// minSectionLength is the shortest section body that counts as real content.
// A section header followed by less than this is treated as absent.
const minSectionLength = 10

// headerLabels enumerates the recognized header fields in document order.
var headerLabels = []struct {
	label  string
	assign func(*report.Report, string)
}{
	{"Project Name", func(r *report.Report, v string) { r.ProjectName = v }},
	{"Project Number", func(r *report.Report, v string) { r.ProjectNumber = v }},
	{"Program/Region", func(r *report.Report, v string) { r.ProgramRegion = v }},
	{"Category", func(r *report.Report, v string) { r.Category = v }},
	{"Project Leader", func(r *report.Report, v string) { r.ProjectLeader = v }},
	{"Project Reviewer", func(r *report.Report, v string) { r.Reviewer = v }},
	{"Lead Discipline(s)", func(r *report.Report, v string) { r.Disciplines = v }},
	{"Client", func(r *report.Report, v string) { r.Client = v }},
	{"Client Representative", func(r *report.Report, v string) { r.ClientRep = v }},
}

// sectionLabels enumerates the recognized narrative sections.
var sectionLabels = []struct {
	label  string
	assign func(*report.Report, string)
}{
	{"Background", func(r *report.Report, v string) { r.Background = v }},
	{"Scope of Work", func(r *report.Report, v string) { r.ScopeOfWork = v }},
	{"Scope of Services", func(r *report.Report, v string) { r.ScopeOfServices = v }},
	{"Deliverables", func(r *report.Report, v string) { r.Deliverables = v }},
	{"Reference documents & input data", func(r *report.Report, v string) { r.References = v }},
	{"Existing concept design", func(r *report.Report, v string) { r.ExistingDesign = v }},
	{"Assumptions", func(r *report.Report, v string) { r.Assumptions = v }},
	{"Performance requirements", func(r *report.Report, v string) { r.Requirements = v }},
	{"Operation & maintenance", func(r *report.Report, v string) { r.OperationMaint = v }},
	{"Monitoring & controls", func(r *report.Report, v string) { r.Monitoring = v }},
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	numberedItem  = regexp.MustCompile(`^\s*\d+\.`)

	// fieldPatterns holds, per header label, the ordered rule list. The first
	// rule that matches wins: label followed by ':' or '-', label followed by
	// the value after whitespace, label at the start of a line.
	fieldPatterns = buildFieldPatterns()

	// sectionHeaders matches a line that consists of a given label with an
	// optional trailing ':' or '-'.
	sectionHeaders = buildSectionHeaders()

	// knownLabels is every recognized header and section label, used to decide
	// where a greedy section capture must stop.
	knownLabels = buildKnownLabels()
)

func buildFieldPatterns() map[string][]*regexp.Regexp {
	m := make(map[string][]*regexp.Regexp, len(headerLabels))
	for _, f := range headerLabels {
		q := regexp.QuoteMeta(f.label)
		m[f.label] = []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + q + `\s*[:\-]\s*([^\n\r]+)`),
			regexp.MustCompile(`(?i)` + q + `\s+([^\n\r]+)`),
			regexp.MustCompile(`(?im)^` + q + `\s*([^\n\r]+)`),
		}
	}
	return m
}

func buildSectionHeaders() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(sectionLabels))
	for _, s := range sectionLabels {
		q := regexp.QuoteMeta(s.label)
		m[s.label] = regexp.MustCompile(`(?i)^\s*` + q + `\s*[:\-]?\s*$`)
	}
	return m
}

func buildKnownLabels() []string {
	labels := make([]string, 0, len(headerLabels)+len(sectionLabels))
	for _, f := range headerLabels {
		labels = append(labels, strings.ToLower(f.label))
	}
	for _, s := range sectionLabels {
		labels = append(labels, strings.ToLower(s.label))
	}
	return labels
}

// Extract parses raw document text into a report. Header fields and sections
// that cannot be located are left empty; the caller fills file metadata and
// derives searchable text and trust score afterwards.
func Extract(raw string) report.Report {
	var r report.Report
	lines := strings.Split(raw, "\n")

	for _, f := range headerLabels {
		if v := extractField(raw, f.label); v != "" {
			f.assign(&r, v)
		}
	}
	for _, s := range sectionLabels {
		if v := extractSection(lines, s.label); v != "" {
			s.assign(&r, v)
		}
	}
	return r
}

// extractField tries the ordered rule list for one label and returns the
// first captured value, whitespace-collapsed. A capture identical to the
// label itself (a table header with no value) is rejected.
func extractField(text, label string) string {
	for _, re := range fieldPatterns[label] {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := collapse(m[1])
		if v != "" && v != label {
			return v
		}
	}
	return ""
}

// extractSection locates the first line holding the section header and
// greedily captures everything up to the next recognized header line, a
// numbered-list marker, or end of text. Content shorter than
// minSectionLength is treated as absent.
func extractSection(lines []string, label string) string {
	header := sectionHeaders[label]
	start := -1
	for i, line := range lines {
		if header.MatchString(line) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	var body []string
	for _, line := range lines[start:] {
		if isBoundary(line) {
			break
		}
		body = append(body, line)
	}

	content := collapse(strings.Join(body, "\n"))
	if len(content) <= minSectionLength {
		return ""
	}
	return content
}

// isBoundary reports whether a line terminates a greedy section capture.
func isBoundary(line string) bool {
	if numberedItem.MatchString(line) {
		return true
	}
	trimmed := strings.ToLower(strings.TrimSpace(line))
	for _, label := range knownLabels {
		rest, ok := strings.CutPrefix(trimmed, label)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" || rest[0] == ':' || rest[0] == '-' {
			return true
		}
	}
	return false
}

// collapse normalizes runs of whitespace (including newlines) to single
// spaces and trims the result.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
