package services

import (
	"regexp"
	"strings"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

type ReadabilityAnalyzer interface {
	Report(sections []types.NormalizedSection) types.ReadabilityReport
}

type readabilityAnalyzer struct {
	log *logger.Logger
}

func NewReadabilityAnalyzer(log *logger.Logger) ReadabilityAnalyzer {
	return &readabilityAnalyzer{log: log.With("service", "ReadabilityAnalyzer")}
}

var sentenceEndRe = regexp.MustCompile(`[.!?]+`)

// Report profiles the document structurally. The Flesch figure is a banded
// estimate from average sentence length, not a syllable-accurate score;
// it exists to give callers a stable coarse signal without a model call.
func (a *readabilityAnalyzer) Report(sections []types.NormalizedSection) types.ReadabilityReport {
	words := 0
	sentences := 0
	paragraphs := 0
	for _, s := range sections {
		for _, p := range s.Paragraphs {
			paragraphs++
			words += len(strings.Fields(p))
			sentences += len(sentenceEndRe.FindAllString(p, -1))
		}
	}
	if sentences == 0 && words > 0 {
		sentences = 1
	}

	report := types.ReadabilityReport{
		TotalWords:      words,
		TotalSentences:  sentences,
		TotalParagraphs: paragraphs,
	}
	if sentences > 0 {
		report.AverageSentenceLength = float64(words) / float64(sentences)
	}

	switch {
	case report.AverageSentenceLength < 10:
		report.FleschEstimate = 80
		report.ReadingLevel = "6th grade"
	case report.AverageSentenceLength < 20:
		report.FleschEstimate = 60
		report.ReadingLevel = "10th grade"
	default:
		report.FleschEstimate = 30
		report.ReadingLevel = "college"
	}

	switch {
	case report.FleschEstimate >= 70:
		report.ComplexityAssessment = "easy to read"
	case report.FleschEstimate >= 50:
		report.ComplexityAssessment = "moderately complex"
	default:
		report.ComplexityAssessment = "very complex legal language"
	}
	return report
}
