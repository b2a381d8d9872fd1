package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/repos"
	"github.com/caselight/caselight-backend/internal/services"
	"github.com/caselight/caselight-backend/internal/types"
)

type AnalysisHandler struct {
	log      *logger.Logger
	analysis services.AnalysisService
	orch     services.ModelOrchestrator
	terms    services.TermLookupService
	runs     repos.AnalysisRunRepo
}

// NewAnalysisHandler wires the HTTP surface over the pipeline. runs may be
// nil when storage is disabled.
func NewAnalysisHandler(
	log *logger.Logger,
	analysis services.AnalysisService,
	orch services.ModelOrchestrator,
	terms services.TermLookupService,
	runs repos.AnalysisRunRepo,
) *AnalysisHandler {
	return &AnalysisHandler{
		log:      log.With("handler", "AnalysisHandler"),
		analysis: analysis,
		orch:     orch,
		terms:    terms,
		runs:     runs,
	}
}

type analyzeRequest struct {
	Text            string                `json:"text"`
	SourceID        string                `json:"source_id"`
	Language        string                `json:"language"`
	ComplexityLevel types.ComplexityLevel `json:"complexity_level"`
	DocumentType    types.DocumentType    `json:"document_type"`
}

func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeMalformedInput, "invalid JSON body")
		return
	}

	record, err := h.analysis.Analyze(c.Request.Context(),
		types.DocumentText{Raw: req.Text, SourceID: req.SourceID, Language: req.Language},
		types.AnalysisOptions{ComplexityLevel: req.ComplexityLevel, DocumentType: req.DocumentType})
	if err != nil {
		if errors.Is(err, services.ErrMalformedInput) {
			respondError(c, http.StatusBadRequest, CodeMalformedInput, "document contains no analyzable text")
			return
		}
		h.log.Error("analyze failed", "source_id", req.SourceID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, CodeInternal, "analysis failed")
		return
	}
	c.JSON(http.StatusOK, record)
}

type simplifyRequest struct {
	Text            string                `json:"text"`
	ComplexityLevel types.ComplexityLevel `json:"complexity_level"`
	DocumentType    types.DocumentType    `json:"document_type"`
	MaxTokens       int                   `json:"max_tokens"`
}

func (h *AnalysisHandler) Simplify(c *gin.Context) {
	var req simplifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeMalformedInput, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(c, http.StatusBadRequest, CodeMalformedInput, "text is required")
		return
	}
	level := req.ComplexityLevel
	if !level.Valid() {
		level = types.ComplexityHighSchool
	}

	result, err := h.orch.Simplify(c.Request.Context(), types.SimplificationRequest{
		Text:            req.Text,
		ComplexityLevel: level,
		DocumentType:    req.DocumentType,
		MaxTokens:       req.MaxTokens,
	})
	if err != nil {
		// Exhausted backends still answer: the labeled placeholder carries
		// the reason code.
		if errors.Is(err, services.ErrSimplifyUnavailable) {
			c.JSON(http.StatusOK, services.PlaceholderResult(err))
			return
		}
		h.log.Error("simplify failed", "error", err.Error())
		respondError(c, http.StatusInternalServerError, CodeInternal, "simplification failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

type termLookupRequest struct {
	Term            string                `json:"term"`
	ComplexityLevel types.ComplexityLevel `json:"complexity_level"`
}

func (h *AnalysisHandler) LookupTerm(c *gin.Context) {
	var req termLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeMalformedInput, "invalid JSON body")
		return
	}

	def, err := h.terms.Lookup(c.Request.Context(), req.Term, req.ComplexityLevel)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMalformedInput):
			respondError(c, http.StatusBadRequest, CodeMalformedInput, "term is required")
		case errors.Is(err, services.ErrSimplifyUnavailable):
			respondError(c, http.StatusServiceUnavailable, CodeSimplifyUnavailable, "no backend available to define this term")
		default:
			h.log.Error("term lookup failed", "error", err.Error())
			respondError(c, http.StatusInternalServerError, CodeInternal, "term lookup failed")
		}
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *AnalysisHandler) RecentAnalyses(c *gin.Context) {
	if h.runs == nil {
		respondError(c, http.StatusServiceUnavailable, CodeStorageUnavailable, "analysis storage is disabled")
		return
	}
	sourceID := strings.TrimSpace(c.Query("source_id"))
	if sourceID == "" {
		respondError(c, http.StatusBadRequest, CodeMalformedInput, "source_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rows, err := h.runs.RecentBySource(c.Request.Context(), sourceID, limit)
	if err != nil {
		h.log.Error("recent analyses query failed", "source_id", sourceID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, CodeInternal, "query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": rows})
}
