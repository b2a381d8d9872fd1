package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

// ErrMalformedInput rejects documents that contain no analyzable text
// after cleanup. Handlers map it to a 400.
var ErrMalformedInput = errors.New("document contains no analyzable text")

type DocumentNormalizer interface {
	Normalize(doc types.DocumentText) ([]types.NormalizedSection, error)
}

type documentNormalizer struct {
	log *logger.Logger
}

func NewDocumentNormalizer(log *logger.Logger) DocumentNormalizer {
	return &documentNormalizer{log: log.With("service", "DocumentNormalizer")}
}

var numberedHeading = regexp.MustCompile(`^\d+[.)]\s+\S`)

// isHeading recognizes the two heading shapes legal boilerplate actually
// uses: numbered clauses ("12. TERMINATION") and short all-caps lines.
func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if numberedHeading.MatchString(trimmed) {
		return true
	}
	if len(trimmed) < 4 || len(trimmed) > 100 {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func cleanText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
}

// Normalize cleans the raw text, splits it into heading-delimited sections
// of blank-line-separated paragraphs, and assigns monotonic, non-overlapping
// offsets into the normalized text. The same input always yields the same
// sections.
func (n *documentNormalizer) Normalize(doc types.DocumentText) ([]types.NormalizedSection, error) {
	cleaned := cleanText(doc.Raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrMalformedInput
	}

	type rawSection struct {
		heading    string
		paragraphs []string
	}

	sections := []rawSection{}
	current := rawSection{}
	var para []string

	flushPara := func() {
		if len(para) > 0 {
			current.paragraphs = append(current.paragraphs, strings.Join(para, " "))
			para = nil
		}
	}
	flushSection := func() {
		flushPara()
		if current.heading != "" || len(current.paragraphs) > 0 {
			sections = append(sections, current)
		}
		current = rawSection{}
	}

	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flushPara()
			continue
		}
		if isHeading(line) {
			flushSection()
			current.heading = line
			continue
		}
		para = append(para, line)
	}
	flushSection()

	if len(sections) == 0 {
		return nil, ErrMalformedInput
	}

	out := make([]types.NormalizedSection, len(sections))
	cursor := 0
	for i, s := range sections {
		sec := types.NormalizedSection{
			SectionID:  fmt.Sprintf("s%03d", i+1),
			Heading:    s.heading,
			Paragraphs: s.paragraphs,
		}
		text := sec.Text()
		sec.StartOffset = cursor
		sec.EndOffset = cursor + len(text)
		cursor = sec.EndOffset + 2
		out[i] = sec
	}

	n.log.Debug("normalized document", "source_id", doc.SourceID, "sections", len(out))
	return out, nil
}
