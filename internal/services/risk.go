package services

import (
	"regexp"
	"sort"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

type RiskClassifier interface {
	Assess(sections []types.NormalizedSection) types.RiskAssessment
}

type riskRule struct {
	name           string
	re             *regexp.Regexp
	factorType     types.FactorType
	score          float64
	weight         float64
	confidence     float64
	rationale      string
	recommendation string
}

// The rule table is ordered by score so factor output is stable. Scores
// feed SeverityForScore directly; weights shape the per-section blend.
var riskRules = []riskRule{
	{
		name:           "broad_liability",
		re:             regexp.MustCompile(`(?i)\b(?:any and all|all|unlimited|sole)\s+(?:liability|liabilities|risk|claims|damages)\b`),
		factorType:     types.FactorLiability,
		score:          0.9,
		weight:         1.5,
		confidence:     0.85,
		rationale:      "Broad or unlimited liability language shifts open-ended risk onto one party.",
		recommendation: "Negotiate a cap on liability, such as fees paid in the last 12 months.",
	},
	{
		name:           "waiver_of_rights",
		re:             regexp.MustCompile(`(?i)\bwaiv(?:e|es|er|ing)\b[^.]{0,80}\b(?:right|rights|claim|claims|jury)\b`),
		factorType:     types.FactorOther,
		score:          0.85,
		weight:         1.3,
		confidence:     0.8,
		rationale:      "A waiver clause gives up legal rights or claims in advance.",
		recommendation: "Understand exactly which rights are waived before signing; some waivers are negotiable.",
	},
	{
		name:           "binding_arbitration",
		re:             regexp.MustCompile(`(?i)\b(?:binding\s+)?arbitration\b`),
		factorType:     types.FactorOther,
		score:          0.8,
		weight:         1.0,
		confidence:     0.8,
		rationale:      "Binding arbitration replaces access to court with a private process.",
		recommendation: "Check whether arbitration is mandatory and who pays the arbitrator's fees.",
	},
	{
		name:           "unilateral_termination",
		re:             regexp.MustCompile(`(?i)\bterminat(?:e|es|ed|ion)\b[^.]{0,80}\b(?:sole\s+discretion|without\s+(?:cause|notice)|at\s+any\s+time)\b`),
		factorType:     types.FactorTermination,
		score:          0.75,
		weight:         1.0,
		confidence:     0.8,
		rationale:      "One party can end the agreement at will while the other stays bound.",
		recommendation: "Ask for mutual termination rights or a minimum notice period.",
	},
	{
		name:           "indemnification",
		re:             regexp.MustCompile(`(?i)\b(?:indemnif(?:y|ies|ied|ication)|hold\s+harmless)\b`),
		factorType:     types.FactorIndemnification,
		score:          0.7,
		weight:         1.2,
		confidence:     0.85,
		rationale:      "An indemnification clause makes one party pay the other's losses or legal costs.",
		recommendation: "Limit indemnification to losses you actually cause, and exclude the other side's negligence.",
	},
	{
		name:           "automatic_renewal",
		re:             regexp.MustCompile(`(?i)\bautomatic(?:ally)?\s+renew`),
		factorType:     types.FactorTermination,
		score:          0.6,
		weight:         0.8,
		confidence:     0.75,
		rationale:      "The agreement renews by itself unless cancelled within a window.",
		recommendation: "Calendar the renewal deadline and the exact cancellation procedure.",
	},
	{
		name:           "penalty_clauses",
		re:             regexp.MustCompile(`(?i)\b(?:penalt(?:y|ies)|liquidated\s+damages|late\s+(?:fee|fees|charge|charges))\b`),
		factorType:     types.FactorPayment,
		score:          0.6,
		weight:         0.8,
		confidence:     0.75,
		rationale:      "Fixed penalties apply on breach or late performance.",
		recommendation: "Verify penalty amounts are proportionate and whether a grace period applies.",
	},
	{
		name:           "attorney_fees",
		re:             regexp.MustCompile(`(?i)\battorney(?:'s|s'|s)?\s+fees\b`),
		factorType:     types.FactorPayment,
		score:          0.5,
		weight:         0.6,
		confidence:     0.7,
		rationale:      "The losing side may have to pay the other's legal costs.",
		recommendation: "Check whether the fee-shifting clause is mutual or one-sided.",
	},
	{
		name:           "confidentiality",
		re:             regexp.MustCompile(`(?i)\b(?:confidential(?:ity)?|non-disclosure)\b`),
		factorType:     types.FactorConfidentiality,
		score:          0.45,
		weight:         0.5,
		confidence:     0.7,
		rationale:      "Confidentiality obligations restrict what can be shared, sometimes indefinitely.",
		recommendation: "Confirm the confidentiality term has an end date and reasonable scope.",
	},
	{
		name:           "choice_of_law",
		re:             regexp.MustCompile(`(?i)\bgoverned\s+by\s+the\s+laws?\s+of\b`),
		factorType:     types.FactorOther,
		score:          0.4,
		weight:         0.4,
		confidence:     0.7,
		rationale:      "Disputes are decided under a specific jurisdiction's law, possibly far from you.",
		recommendation: "Note the governing jurisdiction; litigating away from home raises costs.",
	},
}

var (
	mentionsLiabilityRe = regexp.MustCompile(`(?i)\bliabilit(?:y|ies)\b`)
	liabilityCapRe      = regexp.MustCompile(`(?i)\b(?:limit(?:ation)?\s+of\s+liability|liability\s+(?:is\s+|shall\s+be\s+)?(?:limited|capped)|(?:shall|will)\s+not\s+exceed)\b`)
)

// missingLiabilityCapRule is applied structurally, not by its own regex:
// when liability is mentioned and no cap clause exists anywhere in the
// document, it joins the weighted blend of the first liability-mentioning
// section. The overall score therefore always equals some section's score.
var missingLiabilityCapRule = riskRule{
	name:           "missing_liability_cap",
	factorType:     types.FactorLiability,
	score:          0.5,
	weight:         0.6,
	confidence:     0.6,
	rationale:      "Liability is discussed but no cap or limitation clause was found.",
	recommendation: "Ask for an explicit limitation-of-liability clause; none was found.",
}

type riskClassifier struct {
	log *logger.Logger
}

func NewRiskClassifier(log *logger.Logger) RiskClassifier {
	return &riskClassifier{log: log.With("service", "RiskClassifier")}
}

// Assess scans every section against the rule table. The overall score is
// the maximum per-section score, never an average: one severe clause on
// page nine must not be diluted by pages of boilerplate.
func (c *riskClassifier) Assess(sections []types.NormalizedSection) types.RiskAssessment {
	var factors []types.RiskFactor
	var recs []string
	recSeen := map[string]bool{}
	overall := 0.0

	// The cap check is document-wide: a limitation clause anywhere covers
	// liability mentioned in any section.
	liabilityCapped := false
	firstLiabilitySection := ""
	for _, s := range sections {
		text := s.Heading + "\n" + s.Text()
		if firstLiabilitySection == "" && mentionsLiabilityRe.MatchString(text) {
			firstLiabilitySection = s.SectionID
		}
		if liabilityCapRe.MatchString(text) {
			liabilityCapped = true
		}
	}

	for _, s := range sections {
		text := s.Heading + "\n" + s.Text()

		weightSum := 0.0
		weighted := 0.0
		apply := func(rule riskRule) {
			weightSum += rule.weight
			weighted += rule.weight * rule.score
			factors = append(factors, types.RiskFactor{
				Type:       rule.factorType,
				Severity:   types.SeverityForScore(rule.score),
				SectionID:  s.SectionID,
				Rationale:  rule.rationale,
				Confidence: rule.confidence,
			})
			if !recSeen[rule.recommendation] {
				recSeen[rule.recommendation] = true
				recs = append(recs, rule.recommendation)
			}
		}

		for _, rule := range riskRules {
			if rule.re.MatchString(text) {
				apply(rule)
			}
		}
		if !liabilityCapped && s.SectionID == firstLiabilitySection {
			apply(missingLiabilityCapRule)
		}

		if weightSum > 0 {
			if score := weighted / weightSum; score > overall {
				overall = score
			}
		}
	}

	sortRecommendations(recs)

	c.log.Debug("assessed risk", "sections", len(sections), "factors", len(factors), "overall_score", overall)
	return types.RiskAssessment{
		OverallScore:    overall,
		OverallLevel:    types.SeverityForScore(overall),
		Factors:         factors,
		Recommendations: recs,
	}
}

// sortRecommendations orders advice about the worst findings first.
// Recommendations were appended in first-occurrence order, so a stable sort
// by the triggering rule's severity band keeps first occurrence as the
// tiebreak.
func sortRecommendations(recs []string) {
	rank := map[string]int{}
	for _, rule := range riskRules {
		rank[rule.recommendation] = types.SeverityForScore(rule.score).Rank()
	}
	rank[missingLiabilityCapRule.recommendation] = types.SeverityForScore(missingLiabilityCapRule.score).Rank()
	sort.SliceStable(recs, func(i, j int) bool {
		ri, ok := rank[recs[i]]
		if !ok {
			ri = types.SeverityMedium.Rank()
		}
		rj, ok := rank[recs[j]]
		if !ok {
			rj = types.SeverityMedium.Rank()
		}
		return ri < rj
	})
}
