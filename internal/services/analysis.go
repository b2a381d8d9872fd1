package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/observability"
	"github.com/caselight/caselight-backend/internal/types"
)

// AnalysisRunRecorder persists finished records. Persistence is best
// effort; a nil recorder disables it.
type AnalysisRunRecorder interface {
	Record(ctx context.Context, row *types.AnalysisRun) error
}

type AnalysisService interface {
	Analyze(ctx context.Context, doc types.DocumentText, opts types.AnalysisOptions) (*types.AnalysisRecord, error)
}

type analysisService struct {
	log         *logger.Logger
	normalizer  DocumentNormalizer
	extractor   FeatureExtractor
	risk        RiskClassifier
	readability ReadabilityAnalyzer
	orch        ModelOrchestrator
	runs        AnalysisRunRecorder
	metrics     *observability.Metrics
}

func NewAnalysisService(
	log *logger.Logger,
	normalizer DocumentNormalizer,
	extractor FeatureExtractor,
	risk RiskClassifier,
	readability ReadabilityAnalyzer,
	orch ModelOrchestrator,
	runs AnalysisRunRecorder,
	metrics *observability.Metrics,
) AnalysisService {
	return &analysisService{
		log:         log.With("service", "AnalysisService"),
		normalizer:  normalizer,
		extractor:   extractor,
		risk:        risk,
		readability: readability,
		orch:        orch,
		runs:        runs,
		metrics:     metrics,
	}
}

type docTypeSignature struct {
	docType types.DocumentType
	re      *regexp.Regexp
	purpose string
}

var docTypeSignatures = []docTypeSignature{
	{types.DocLease, regexp.MustCompile(`(?i)\b(?:lease|landlord|tenant|premises|rent)\b`),
		"Establishes a rental relationship: who pays what, who maintains the property, and how the tenancy ends."},
	{types.DocEmployment, regexp.MustCompile(`(?i)\b(?:employment|employee|employer|salary|wages|non-compete)\b`),
		"Defines an employment relationship: duties, compensation, benefits, and the terms under which it ends."},
	{types.DocPrivacyPolicy, regexp.MustCompile(`(?i)\b(?:personal\s+data|privacy|data\s+collection|cookies)\b`),
		"Explains what personal information is collected, how it is used and shared, and what rights you have over it."},
	{types.DocTermsOfService, regexp.MustCompile(`(?i)\b(?:terms\s+of\s+service|user\s+account|acceptable\s+use)\b`),
		"Sets the rules for using a service: what you may do, what gets your account terminated, and who is responsible when things break."},
	{types.DocInsurance, regexp.MustCompile(`(?i)\b(?:coverage|policyholder|premium|deductible|claim\s+procedure)\b`),
		"Describes what the policy covers, what it excludes, what it costs, and how to file a claim."},
	{types.DocLoan, regexp.MustCompile(`(?i)\b(?:loan|borrower|interest\s+rate|principal|repayment)\b`),
		"Sets the terms of borrowed money: interest, payment schedule, and what happens on default."},
}

const contractPurpose = "A binding agreement defining each party's obligations, payment terms, and remedies on breach."

// inferDocumentType scores each signature by match count across the
// document and picks the strongest; earlier signatures win ties. Falls
// back to generic contract.
func inferDocumentType(sections []types.NormalizedSection) (types.DocumentType, string) {
	var full strings.Builder
	for _, s := range sections {
		full.WriteString(s.Heading)
		full.WriteString("\n")
		full.WriteString(s.Text())
		full.WriteString("\n")
	}
	text := full.String()

	bestIdx := -1
	bestCount := 0
	for i, sig := range docTypeSignatures {
		if n := len(sig.re.FindAllStringIndex(text, -1)); n > bestCount {
			bestIdx, bestCount = i, n
		}
	}
	if bestIdx == -1 {
		return types.DocContract, contractPurpose
	}
	return docTypeSignatures[bestIdx].docType, docTypeSignatures[bestIdx].purpose
}

func purposeForType(docType types.DocumentType) string {
	for _, sig := range docTypeSignatures {
		if sig.docType == docType {
			return sig.purpose
		}
	}
	return contractPurpose
}

// Analyze runs the full pipeline. Only malformed input fails the call;
// every downstream failure degrades into a partial record with an explicit
// unavailable marker.
func (s *analysisService) Analyze(ctx context.Context, doc types.DocumentText, opts types.AnalysisOptions) (*types.AnalysisRecord, error) {
	start := time.Now()

	sections, err := s.normalizer.Normalize(doc)
	if err != nil {
		s.metrics.RecordAnalyze(ctx, "malformed_input", time.Since(start))
		return nil, err
	}

	docType := opts.DocumentType
	purpose := ""
	if docType == "" {
		docType, purpose = inferDocumentType(sections)
	} else {
		purpose = purposeForType(docType)
	}

	level := opts.ComplexityLevel
	if !level.Valid() {
		level = types.ComplexityHighSchool
	}

	// Sections are independent; extract in parallel and stitch the results
	// back in section order so output stays deterministic.
	perSection := make([][]types.ExtractedFeature, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, sec := range sections {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			perSection[i] = s.extractor.Extract(sec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.RecordAnalyze(ctx, "cancelled", time.Since(start))
		return nil, err
	}
	var features []types.ExtractedFeature
	for _, fs := range perSection {
		features = append(features, fs...)
	}

	risk := s.risk.Assess(sections)
	readability := s.readability.Report(sections)

	var fullText strings.Builder
	for i, sec := range sections {
		if i > 0 {
			fullText.WriteString("\n\n")
		}
		if sec.Heading != "" {
			fullText.WriteString(sec.Heading)
			fullText.WriteString("\n")
		}
		fullText.WriteString(sec.Text())
	}

	status := "succeeded"
	simplification, err := s.orch.Simplify(ctx, types.SimplificationRequest{
		Text:            fullText.String(),
		ComplexityLevel: level,
		DocumentType:    docType,
	})
	if err != nil {
		if !errors.Is(err, ErrSimplifyUnavailable) && ctx.Err() != nil {
			s.metrics.RecordAnalyze(ctx, "cancelled", time.Since(start))
			return nil, err
		}
		simplification = PlaceholderResult(err)
		status = "partial"
		s.log.Warn("simplification unavailable, returning partial record",
			"source_id", doc.SourceID,
			"reason_code", simplification.ReasonCode)
	}

	record := &types.AnalysisRecord{
		DocumentID:      uuid.NewString(),
		DocumentPurpose: purpose,
		Sections:        sections,
		Features:        features,
		Risk:            risk,
		Readability:     readability,
		Simplification:  simplification,
		AnalyzedAt:      time.Now().UTC(),
	}

	s.persist(ctx, doc, docType, level, record)
	s.metrics.RecordAnalyze(ctx, status, time.Since(start))
	s.log.Info("analysis complete",
		"document_id", record.DocumentID,
		"source_id", doc.SourceID,
		"sections", len(sections),
		"features", len(features),
		"overall_risk", string(risk.OverallLevel),
		"status", status)
	return record, nil
}

// persist is best effort: a storage failure is logged, never surfaced.
func (s *analysisService) persist(ctx context.Context, doc types.DocumentText, docType types.DocumentType, level types.ComplexityLevel, record *types.AnalysisRecord) {
	if s.runs == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		s.log.Warn("failed to marshal analysis record", "document_id", record.DocumentID, "error", err.Error())
		return
	}
	row := &types.AnalysisRun{
		SourceID:     doc.SourceID,
		DocumentType: string(docType),
		Complexity:   string(level),
		OverallRisk:  string(record.Risk.OverallLevel),
		RiskScore:    record.Risk.OverallScore,
		Record:       datatypes.JSON(raw),
	}
	if err := s.runs.Record(ctx, row); err != nil {
		s.log.Warn("failed to persist analysis run", "document_id", record.DocumentID, "error", err.Error())
	}
}
