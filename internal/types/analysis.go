package types

import "time"

type AnalysisOptions struct {
	ComplexityLevel ComplexityLevel `json:"complexity_level"`
	DocumentType    DocumentType    `json:"document_type,omitempty"`
}

// ReadabilityReport is a deterministic structural profile of the
// normalized document, computed without any model call.
type ReadabilityReport struct {
	TotalWords            int     `json:"total_words"`
	TotalSentences        int     `json:"total_sentences"`
	TotalParagraphs       int     `json:"total_paragraphs"`
	AverageSentenceLength float64 `json:"average_sentence_length"`
	FleschEstimate        float64 `json:"flesch_estimate"`
	ReadingLevel          string  `json:"reading_level"`
	ComplexityAssessment  string  `json:"complexity_assessment"`
}

// AnalysisRecord is the top-level aggregate returned to callers. It owns
// its children exclusively; one record per analysis run.
type AnalysisRecord struct {
	DocumentID      string                `json:"document_id"`
	DocumentPurpose string                `json:"document_purpose"`
	Sections        []NormalizedSection   `json:"sections"`
	Features        []ExtractedFeature    `json:"features"`
	Risk            RiskAssessment        `json:"risk_assessment"`
	Readability     ReadabilityReport     `json:"readability"`
	Simplification  *SimplificationResult `json:"simplification"`
	AnalyzedAt      time.Time             `json:"analyzed_at"`
}

// TermDefinition is the lookup_term payload. Source records whether the
// definition came from the static dictionary or a model.
type TermDefinition struct {
	Term             string   `json:"term"`
	Definition       string   `json:"definition"`
	SimpleDefinition string   `json:"simple_definition,omitempty"`
	Examples         []string `json:"examples"`
	Confidence       float64  `json:"confidence"`
	Source           string   `json:"source"`
}
