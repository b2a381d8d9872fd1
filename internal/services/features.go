package services

import (
	"regexp"
	"sort"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

type FeatureExtractor interface {
	Extract(section types.NormalizedSection) []types.ExtractedFeature
	ExtractAll(sections []types.NormalizedSection) []types.ExtractedFeature
}

type featureExtractor struct {
	log       *logger.Logger
	termExprs []termExpr
}

type termExpr struct {
	re    *regexp.Regexp
	entry *TermEntry
}

var (
	moneyRe = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{2})?`)

	dateExplicitRe = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	// "thirty (30) days" and bare "30 days" style durations.
	durationWordRe = regexp.MustCompile(`(?i)\b[a-z]+(?:-[a-z]+)?\s*\(\d+\)\s*(?:business\s+|calendar\s+)?days?\b`)
	durationNumRe  = regexp.MustCompile(`(?i)\b\d+\s+(?:business\s+|calendar\s+)?(?:days?|months?|years?)\b`)

	partyRoleRe  = regexp.MustCompile(`(?i)\b(?:landlord|tenant|lessor|lessee|employer|employee|contractor|licensor|licensee|buyer|seller|borrower|lender|guarantor)\b`)
	corpSuffixRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9&.'\-]*(?:\s+[A-Z][A-Za-z0-9&.'\-]*)*,?\s+(?:Inc\.?|LLC|L\.L\.C\.|Ltd\.?|Corp\.?|Corporation|Company)\b`)
)

// NewFeatureExtractor compiles one matcher per dictionary surface form up
// front so extraction itself allocates only candidates.
func NewFeatureExtractor(log *logger.Logger, dict *TermDictionary) FeatureExtractor {
	keys := dict.MatchKeys()
	exprs := make([]termExpr, 0, len(keys))
	for _, k := range keys {
		exprs = append(exprs, termExpr{
			re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k.Surface) + `\b`),
			entry: k.Entry,
		})
	}
	return &featureExtractor{
		log:       log.With("service", "FeatureExtractor"),
		termExprs: exprs,
	}
}

func (e *featureExtractor) candidates(section types.NormalizedSection) []types.ExtractedFeature {
	text := section.Text()
	var out []types.ExtractedFeature

	add := func(kind types.FeatureKind, conf float64, termID string, spans [][]int) {
		for _, span := range spans {
			out = append(out, types.ExtractedFeature{
				Kind:       kind,
				Text:       text[span[0]:span[1]],
				SectionID:  section.SectionID,
				Offset:     section.StartOffset + span[0],
				Length:     span[1] - span[0],
				Confidence: conf,
				TermID:     termID,
			})
		}
	}

	add(types.FeatureMoney, 0.95, "", moneyRe.FindAllStringIndex(text, -1))
	add(types.FeatureDate, 0.85, "", dateExplicitRe.FindAllStringIndex(text, -1))
	add(types.FeatureDate, 0.7, "", durationWordRe.FindAllStringIndex(text, -1))
	add(types.FeatureDate, 0.7, "", durationNumRe.FindAllStringIndex(text, -1))
	add(types.FeatureParty, 0.8, "", partyRoleRe.FindAllStringIndex(text, -1))
	add(types.FeatureParty, 0.75, "", corpSuffixRe.FindAllStringIndex(text, -1))
	for _, te := range e.termExprs {
		add(types.FeatureTerm, 0.9, te.entry.ID, te.re.FindAllStringIndex(text, -1))
	}
	return out
}

// resolveOverlaps keeps at most one feature per span of text. Longer
// matches win; between equal lengths the kind priority decides, then the
// earlier offset.
func resolveOverlaps(cands []types.ExtractedFeature) []types.ExtractedFeature {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Length != cands[j].Length {
			return cands[i].Length > cands[j].Length
		}
		if pi, pj := cands[i].Kind.Priority(), cands[j].Kind.Priority(); pi != pj {
			return pi < pj
		}
		return cands[i].Offset < cands[j].Offset
	})

	var kept []types.ExtractedFeature
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if c.Offset < k.Offset+k.Length && k.Offset < c.Offset+c.Length {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Offset != kept[j].Offset {
			return kept[i].Offset < kept[j].Offset
		}
		return kept[i].Kind.Priority() < kept[j].Kind.Priority()
	})
	return kept
}

func (e *featureExtractor) Extract(section types.NormalizedSection) []types.ExtractedFeature {
	return resolveOverlaps(e.candidates(section))
}

// ExtractAll runs every section and returns features ordered by section,
// then offset. Sections are independent, so callers may also fan out per
// section and concatenate; the result is identical.
func (e *featureExtractor) ExtractAll(sections []types.NormalizedSection) []types.ExtractedFeature {
	var out []types.ExtractedFeature
	for _, s := range sections {
		out = append(out, e.Extract(s)...)
	}
	return out
}
