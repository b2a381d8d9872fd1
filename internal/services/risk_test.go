package services

import (
	"math"
	"strings"
	"testing"

	"github.com/caselight/caselight-backend/internal/types"
)

func assess(t *testing.T, raw string) types.RiskAssessment {
	t.Helper()
	n := NewDocumentNormalizer(testLogger(t))
	sections, err := n.Normalize(types.DocumentText{Raw: raw})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return NewRiskClassifier(testLogger(t)).Assess(sections)
}

func TestAssessOverallIsMaxNotAverage(t *testing.T) {
	// One mild section and one severe one: the overall score must track
	// the severe section, not the mean. The cap clause keeps the
	// missing-cap rule out of the blend.
	raw := "1. GOVERNING LAW\nThis agreement is governed by the laws of Delaware.\n\n" +
		"2. RISK\nCustomer assumes any and all liability for damages of every kind.\n\n" +
		"3. LIMITS\nLiability shall not exceed the total fees paid."
	a := assess(t, raw)

	if a.OverallScore < 0.85 {
		t.Errorf("OverallScore = %v, want the max section score (0.9)", a.OverallScore)
	}
	if a.OverallLevel != types.SeverityHigh {
		t.Errorf("OverallLevel = %s, want high", a.OverallLevel)
	}
}

func TestAssessIndemnificationClause(t *testing.T) {
	a := assess(t, "8. INDEMNITY\nTenant shall indemnify and hold harmless the Landlord from all claims arising from Tenant's use of the premises.")

	var found *types.RiskFactor
	for i := range a.Factors {
		if a.Factors[i].Type == types.FactorIndemnification {
			found = &a.Factors[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no indemnification factor in %+v", a.Factors)
	}
	if found.Severity.Rank() > types.SeverityMedium.Rank() {
		t.Errorf("severity = %s, want at least medium", found.Severity)
	}
	if found.SectionID == "" {
		t.Error("factor missing section id")
	}
}

func TestAssessMissingLiabilityCap(t *testing.T) {
	a := assess(t, "5. LIABILITY\nProvider's liability is discussed in this section without further detail.")

	var found bool
	for _, f := range a.Factors {
		if f.Type == types.FactorLiability && strings.Contains(f.Rationale, "no cap") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a missing-cap factor, got %+v", a.Factors)
	}
	// The only triggered rule is the missing-cap one, so the section score
	// and the overall score are exactly its score.
	if math.Abs(a.OverallScore-0.5) > 1e-9 {
		t.Errorf("OverallScore = %v, want 0.5", a.OverallScore)
	}
}

func TestAssessUncappedLiabilityBlendsIntoSectionScore(t *testing.T) {
	// With no cap anywhere, the missing-cap rule joins the liability
	// section's weighted average instead of flooring the overall score, so
	// the overall score still equals a section score.
	raw := "1. GOVERNING LAW\nThis agreement is governed by the laws of Delaware.\n\n" +
		"2. RISK\nCustomer assumes any and all liability for damages of every kind."
	a := assess(t, raw)

	want := (1.5*0.9 + 0.6*0.5) / (1.5 + 0.6)
	if math.Abs(a.OverallScore-want) > 1e-9 {
		t.Errorf("OverallScore = %v, want the liability section blend %v", a.OverallScore, want)
	}
	if a.OverallLevel != types.SeverityHigh {
		t.Errorf("OverallLevel = %s, want high", a.OverallLevel)
	}

	var capFactor *types.RiskFactor
	for i := range a.Factors {
		if strings.Contains(a.Factors[i].Rationale, "no cap") {
			capFactor = &a.Factors[i]
		}
	}
	if capFactor == nil {
		t.Fatalf("missing-cap factor absent: %+v", a.Factors)
	}
	if capFactor.SectionID != "s002" {
		t.Errorf("missing-cap factor on section %q, want the liability section", capFactor.SectionID)
	}
}

func TestAssessCappedLiabilityNoAbsenceFactor(t *testing.T) {
	a := assess(t, "5. LIABILITY\nProvider's aggregate liability shall not exceed the fees paid in the preceding twelve months.")

	for _, f := range a.Factors {
		if strings.Contains(f.Rationale, "no cap") {
			t.Errorf("absence factor emitted despite cap clause: %+v", f)
		}
	}
}

func TestAssessRecommendationsDedupedAndOrdered(t *testing.T) {
	// Attorney fees (medium) appears before arbitration (high) in document
	// order, and indemnification appears twice.
	raw := "1. FEES\nThe losing party pays the other side's attorneys fees.\n\n" +
		"2. DISPUTES\nAll disputes are settled by binding arbitration.\n\n" +
		"3. INDEMNITY\nYou agree to indemnify us.\n\n" +
		"4. MORE INDEMNITY\nYou further indemnify our affiliates."
	a := assess(t, raw)

	seen := map[string]int{}
	for _, r := range a.Recommendations {
		seen[r]++
	}
	for r, n := range seen {
		if n > 1 {
			t.Errorf("recommendation duplicated %d times: %q", n, r)
		}
	}

	var arbIdx, feeIdx = -1, -1
	for i, r := range a.Recommendations {
		if strings.Contains(r, "arbitration") {
			arbIdx = i
		}
		if strings.Contains(r, "fee-shifting") {
			feeIdx = i
		}
	}
	if arbIdx == -1 || feeIdx == -1 {
		t.Fatalf("missing expected recommendations: %v", a.Recommendations)
	}
	if arbIdx > feeIdx {
		t.Errorf("high-severity recommendation ordered after medium: %v", a.Recommendations)
	}
}

func TestAssessBenignDocument(t *testing.T) {
	a := assess(t, "WELCOME\n\nThank you for reading. This document describes our office hours and mailing address.")

	if len(a.Factors) != 0 {
		t.Errorf("benign text produced factors: %+v", a.Factors)
	}
	if a.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0", a.OverallScore)
	}
	if a.OverallLevel != types.SeverityLow {
		t.Errorf("OverallLevel = %s, want low", a.OverallLevel)
	}
}
