package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

// TermDefinitionCache is the optional second-level cache for generated
// definitions, keyed by (term, complexity level). A nil cache disables it.
type TermDefinitionCache interface {
	Get(ctx context.Context, term string, level types.ComplexityLevel) (*types.TermDefinition, bool)
	Set(ctx context.Context, term string, level types.ComplexityLevel, def *types.TermDefinition)
}

type TermLookupService interface {
	Lookup(ctx context.Context, term string, level types.ComplexityLevel) (*types.TermDefinition, error)
}

type termLookupService struct {
	log   *logger.Logger
	dict  *TermDictionary
	orch  ModelOrchestrator
	cache TermDefinitionCache
}

func NewTermLookupService(log *logger.Logger, dict *TermDictionary, orch ModelOrchestrator, defCache TermDefinitionCache) TermLookupService {
	return &termLookupService{
		log:   log.With("service", "TermLookupService"),
		dict:  dict,
		orch:  orch,
		cache: defCache,
	}
}

// Lookup resolves a term from the static dictionary first; unknown terms
// get a model-generated definition at the requested complexity level,
// cached when a cache is wired.
func (s *termLookupService) Lookup(ctx context.Context, term string, level types.ComplexityLevel) (*types.TermDefinition, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrMalformedInput
	}
	if !level.Valid() {
		level = types.ComplexityHighSchool
	}

	if entry, ok := s.dict.Lookup(term); ok {
		return &types.TermDefinition{
			Term:             entry.Term,
			Definition:       entry.Definition,
			SimpleDefinition: entry.SimpleDefinition,
			Examples:         entry.Examples,
			Confidence:       0.9,
			Source:           "dictionary",
		}, nil
	}

	if s.cache != nil {
		if def, ok := s.cache.Get(ctx, term, level); ok {
			return def, nil
		}
	}

	req := types.SimplificationRequest{
		Text:            fmt.Sprintf("Define the legal term %q. Explain what it means in practice and give one example of how it appears in a legal document.", term),
		ComplexityLevel: level,
	}
	res, err := s.orch.Simplify(ctx, req)
	if err != nil {
		return nil, err
	}

	def := &types.TermDefinition{
		Term:       term,
		Definition: res.SimplifiedText,
		Examples:   res.KeyPoints,
		Confidence: res.Confidence,
		Source:     res.BackendUsed,
	}
	if s.cache != nil {
		s.cache.Set(ctx, term, level, def)
	}
	return def, nil
}
