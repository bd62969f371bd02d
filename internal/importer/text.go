package importer

import (
	"regexp"
	"strings"
	"time"
)

var (
	blockStartRe = regexp.MustCompile(`STD\d{3}`)
	idRe         = regexp.MustCompile(`STD\d{3,}`)
	textEmailRe  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe      = regexp.MustCompile(`(\+91|91)?[6-9]\d{9}`)
	isoDateRe    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	monDateRe    = regexp.MustCompile(`\d{1,2}\s[A-Z][a-z]{2}\s\d{4}`)
)

// TextNormalizer extracts drafts from layout-free document text, typically
// the concatenated page text of a PDF. It is a best-effort heuristic, not a
// table extractor: the text is split into blocks before each student-ID
// occurrence, and each block is mined for field-shaped substrings. The
// name/course split assumes exactly two name tokens and is known to be lossy
// for other name shapes.
type TextNormalizer struct{}

// NewTextNormalizer constructs a TextNormalizer.
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{}
}

// Normalize partitions text into candidate blocks and shapes each into a
// draft. A block survives only with a non-empty name and at least one of
// email or student ID; everything else is silently discarded.
func (n *TextNormalizer) Normalize(text string) []Draft {
	var drafts []Draft
	for _, block := range splitBlocks(text) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		if draft, ok := parseBlock(block); ok {
			drafts = append(drafts, draft)
		}
	}
	return drafts
}

// splitBlocks cuts the text immediately before each student-ID occurrence,
// keeping any leading chunk before the first ID.
func splitBlocks(text string) []string {
	locs := blockStartRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var blocks []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			blocks = append(blocks, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	blocks = append(blocks, text[prev:])
	return blocks
}

func parseBlock(block string) (Draft, bool) {
	var draft Draft

	draft.StudentID = idRe.FindString(block)
	draft.Email = textEmailRe.FindString(block)

	rawPhone := phoneRe.FindString(block)
	if rawPhone != "" {
		draft.Phone = rawPhone
		if !strings.HasPrefix(draft.Phone, "+") {
			draft.Phone = "+" + draft.Phone
		}
	}

	rawDate := isoDateRe.FindString(block)
	if rawDate == "" {
		rawDate = monDateRe.FindString(block)
	}
	if rawDate != "" {
		draft.EnrollmentDate = normalizeDate(rawDate)
	}

	remaining := block
	for _, matched := range []string{draft.StudentID, draft.Email, rawPhone, rawDate} {
		if matched != "" {
			remaining = strings.Replace(remaining, matched, "", 1)
		}
	}
	remaining = strings.Join(strings.Fields(remaining), " ")

	parts := strings.Fields(remaining)
	if len(parts) >= 2 {
		draft.Name = strings.Join(parts[:2], " ")
		draft.Course = CleanCourse(strings.Join(parts[2:], " "))
	} else {
		draft.Name = remaining
		draft.Course = "General"
	}

	if draft.Name == "" || (draft.Email == "" && draft.StudentID == "") {
		return Draft{}, false
	}
	return draft, true
}

// normalizeDate reshapes a matched date substring into YYYY-MM-DD, returning
// an empty string when it does not parse as a real calendar date.
func normalizeDate(raw string) string {
	for _, layout := range []string{"2006-01-02", "2 Jan 2006"} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
