package types

// DocumentText is the ingestion contract: raw extracted text plus the
// identifiers the ingestion service already knows. It is never mutated.
type DocumentText struct {
	Raw      string `json:"raw_text"`
	SourceID string `json:"source_id"`
	Language string `json:"language"`
}

// NormalizedSection is a contiguous, offset-addressed unit of the cleaned
// document. Offsets index into the normalized text, not the raw input, and
// are monotonically increasing and non-overlapping across a section slice.
type NormalizedSection struct {
	SectionID   string   `json:"section_id"`
	Heading     string   `json:"heading,omitempty"`
	Paragraphs  []string `json:"paragraphs"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
}

// Text joins the section's paragraphs back into a single string.
func (s NormalizedSection) Text() string {
	out := ""
	for i, p := range s.Paragraphs {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

type FeatureKind string

const (
	FeatureMoney FeatureKind = "money"
	FeatureDate  FeatureKind = "date"
	FeatureParty FeatureKind = "party"
	FeatureTerm  FeatureKind = "term"
)

// Priority returns the detector registration rank used to break ties
// between equal-length overlapping matches. Lower wins.
func (k FeatureKind) Priority() int {
	switch k {
	case FeatureMoney:
		return 0
	case FeatureDate:
		return 1
	case FeatureParty:
		return 2
	case FeatureTerm:
		return 3
	default:
		return 4
	}
}

// ExtractedFeature is one deterministic pattern hit inside a section.
// Offset is document-absolute (section start + match position).
type ExtractedFeature struct {
	Kind       FeatureKind `json:"kind"`
	Text       string      `json:"text"`
	SectionID  string      `json:"section_id"`
	Offset     int         `json:"char_offset"`
	Length     int         `json:"length"`
	Confidence float64     `json:"confidence"`
	// TermID is the canonical dictionary id, set only for FeatureTerm.
	TermID string `json:"term_id,omitempty"`
}
