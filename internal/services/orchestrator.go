package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caselight/caselight-backend/internal/cache"
	"github.com/caselight/caselight-backend/internal/httpx"
	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/observability"
	"github.com/caselight/caselight-backend/internal/platform/provider"
	"github.com/caselight/caselight-backend/internal/types"
	"github.com/caselight/caselight-backend/internal/utils"
)

// ErrSimplifyUnavailable reports that no configured backend produced a
// result. Callers substitute a labeled placeholder instead of dropping the
// field.
var ErrSimplifyUnavailable = errors.New("simplification unavailable")

// SimplifyUnavailableError carries the reason code for the placeholder.
// errors.Is(err, ErrSimplifyUnavailable) matches it.
type SimplifyUnavailableError struct {
	ReasonCode string
	Err        error
}

func (e *SimplifyUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("simplification unavailable (%s): %v", e.ReasonCode, e.Err)
	}
	return fmt.Sprintf("simplification unavailable (%s)", e.ReasonCode)
}

func (e *SimplifyUnavailableError) Unwrap() error { return e.Err }

func (e *SimplifyUnavailableError) Is(target error) bool {
	return target == ErrSimplifyUnavailable
}

// PlaceholderResult builds the "simplification unavailable" stand-in for a
// failed orchestration. The reason code keeps the absorbed failure visible
// in the record.
func PlaceholderResult(err error) *types.SimplificationResult {
	reason := types.ReasonBackendsExhausted
	var ue *SimplifyUnavailableError
	if errors.As(err, &ue) && ue.ReasonCode != "" {
		reason = ue.ReasonCode
	}
	return &types.SimplificationResult{
		SimplifiedText: "Simplification is currently unavailable for this document.",
		Confidence:     0,
		GeneratedAt:    time.Now().UTC(),
		Unavailable:    true,
		ReasonCode:     reason,
	}
}

// Request lifecycle states, logged at each transition.
type orchState string

const (
	statePending   orchState = "PENDING"
	stateInFlight  orchState = "IN_FLIGHT"
	stateSucceeded orchState = "SUCCEEDED"
	stateDegraded  orchState = "DEGRADED"
	stateFailed    orchState = "FAILED"
)

// AICallRecorder persists one row per backend call. Recording is best
// effort; a nil recorder disables it.
type AICallRecorder interface {
	Record(ctx context.Context, row *types.AICallLog) error
}

type OrchestratorConfig struct {
	// Consensus fans the request out to every eligible backend and
	// reconciles; off means sequential fallback through the preference
	// order.
	Consensus bool
	// RetryBase is the delay before the single retry on a transient
	// failure.
	RetryBase time.Duration
	// DivergenceThreshold is the Jaccard word-set distance beyond which a
	// consensus run is flagged degraded.
	DivergenceThreshold float64
	// CallTimeout bounds each individual backend call.
	CallTimeout time.Duration
}

func OrchestratorConfigFromEnv(log *logger.Logger) OrchestratorConfig {
	return OrchestratorConfig{
		Consensus:           utils.GetEnvAsBool("ORCH_CONSENSUS_ENABLED", false, log),
		RetryBase:           time.Duration(utils.GetEnvAsInt("ORCH_RETRY_BASE_MS", 500, log)) * time.Millisecond,
		DivergenceThreshold: utils.GetEnvAsFloat("ORCH_DIVERGENCE_THRESHOLD", 0.65, log),
		CallTimeout:         time.Duration(utils.GetEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 60, log)) * time.Second,
	}
}

type ModelOrchestrator interface {
	Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error)
}

type modelOrchestrator struct {
	log      *logger.Logger
	backends []provider.Adapter
	cache    *cache.ResultCache
	recorder AICallRecorder
	metrics  *observability.Metrics
	cfg      OrchestratorConfig

	// sleep is swapped out in tests so retry timing is observable without
	// waiting.
	sleep func(ctx context.Context, d time.Duration)
}

// NewModelOrchestrator wires the orchestrator over backends in preference
// order (first is primary). recorder and metrics may be nil.
func NewModelOrchestrator(
	log *logger.Logger,
	backends []provider.Adapter,
	resultCache *cache.ResultCache,
	recorder AICallRecorder,
	metrics *observability.Metrics,
	cfg OrchestratorConfig,
) ModelOrchestrator {
	return &modelOrchestrator{
		log:      log.With("service", "ModelOrchestrator"),
		backends: backends,
		cache:    resultCache,
		recorder: recorder,
		metrics:  metrics,
		cfg:      cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(httpx.JitterSleep(d)):
			case <-ctx.Done():
			}
		},
	}
}

// Simplify consults the result cache by fingerprint and runs the backend
// state machine on a miss. The computation is shared with every concurrent
// caller for the same fingerprint and survives this caller's cancellation.
func (o *modelOrchestrator) Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error) {
	fp := req.Fingerprint()
	log := o.log.With("fingerprint", shortFP(fp))
	log.Debug("simplify requested", "state", string(statePending), "complexity_level", string(req.ComplexityLevel))

	res, cached, err := o.cache.Do(ctx, fp, func(ctx context.Context) (*types.SimplificationResult, error) {
		return o.compute(ctx, log, req, fp)
	})
	o.metrics.RecordCacheLookup(ctx, cached)
	if err != nil {
		return nil, err
	}
	if cached {
		log.Debug("simplify served from cache", "state", string(stateSucceeded), "backend", res.BackendUsed)
	}
	return res, nil
}

func (o *modelOrchestrator) compute(ctx context.Context, log *logger.Logger, req types.SimplificationRequest, fp string) (*types.SimplificationResult, error) {
	eligible := make([]provider.Adapter, 0, len(o.backends))
	for _, b := range o.backends {
		if b.Capabilities().SupportsLevel(req.ComplexityLevel) {
			eligible = append(eligible, b)
		}
	}
	if len(eligible) == 0 {
		log.Warn("no eligible backends", "state", string(stateFailed))
		return nil, &SimplifyUnavailableError{ReasonCode: types.ReasonNoBackends}
	}

	log.Debug("dispatching to backends", "state", string(stateInFlight), "backends", len(eligible), "consensus", o.cfg.Consensus)

	if o.cfg.Consensus && len(eligible) > 1 {
		return o.consensus(ctx, log, eligible, req, fp)
	}
	return o.fallback(ctx, log, eligible, req, fp)
}

// fallback walks the preference order, retrying each backend once on a
// transient failure before moving on. Non-transient failures fall through
// immediately.
func (o *modelOrchestrator) fallback(ctx context.Context, log *logger.Logger, backends []provider.Adapter, req types.SimplificationRequest, fp string) (*types.SimplificationResult, error) {
	var lastErr error
	for _, b := range backends {
		res, err := o.callWithRetry(ctx, log, b, req, fp)
		if err == nil {
			log.Info("simplify succeeded", "state", string(stateSucceeded), "backend", res.BackendUsed)
			return res, nil
		}
		lastErr = err
		log.Warn("backend failed, falling through",
			"backend", b.Capabilities().Name,
			"error_kind", string(provider.KindOf(err)),
			"error", err.Error())
	}
	log.Error("all backends exhausted", "state", string(stateFailed))
	return nil, &SimplifyUnavailableError{ReasonCode: types.ReasonBackendsExhausted, Err: lastErr}
}

// consensus issues concurrent calls to every eligible backend and
// reconciles: highest self-reported confidence wins, preference order
// breaks ties. Divergent answers are flagged, never withheld.
func (o *modelOrchestrator) consensus(ctx context.Context, log *logger.Logger, backends []provider.Adapter, req types.SimplificationRequest, fp string) (*types.SimplificationResult, error) {
	results := make([]*types.SimplificationResult, len(backends))
	failures := make([]error, len(backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			res, err := o.callWithRetry(gctx, log, b, req, fp)
			results[i], failures[i] = res, err
			// A single backend failing must not cancel its peers.
			return nil
		})
	}
	_ = g.Wait()

	best := -1
	for i, res := range results {
		if res == nil {
			continue
		}
		if best == -1 || res.Confidence > results[best].Confidence {
			best = i
		}
	}
	if best == -1 {
		var lastErr error
		for _, err := range failures {
			if err != nil {
				lastErr = err
			}
		}
		log.Error("all consensus backends failed", "state", string(stateFailed))
		return nil, &SimplifyUnavailableError{ReasonCode: types.ReasonBackendsExhausted, Err: lastErr}
	}

	chosen := results[best]
	for i, res := range results {
		if i == best || res == nil {
			continue
		}
		if d := jaccardDistance(chosen.SimplifiedText, res.SimplifiedText); d > o.cfg.DivergenceThreshold {
			chosen.Degraded = true
			log.Warn("consensus divergence",
				"state", string(stateDegraded),
				"chosen_backend", chosen.BackendUsed,
				"divergent_backend", res.BackendUsed,
				"distance", d)
		}
	}
	if !chosen.Degraded {
		log.Info("consensus reconciled", "state", string(stateSucceeded), "backend", chosen.BackendUsed)
	}
	return chosen, nil
}

func (o *modelOrchestrator) callWithRetry(ctx context.Context, log *logger.Logger, b provider.Adapter, req types.SimplificationRequest, fp string) (*types.SimplificationResult, error) {
	res, err := o.callOnce(ctx, b, req, fp)
	if err == nil || !provider.KindOf(err).Transient() {
		return res, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	// A provider that said Retry-After knows its own recovery window
	// better than our configured base delay.
	backoff := o.cfg.RetryBase
	if ra := provider.RetryAfterOf(err); ra > 0 {
		backoff = ra
	}
	log.Debug("retrying transient failure",
		"backend", b.Capabilities().Name,
		"error_kind", string(provider.KindOf(err)),
		"backoff_ms", backoff.Milliseconds())
	o.sleep(ctx, backoff)
	return o.callOnce(ctx, b, req, fp)
}

func (o *modelOrchestrator) callOnce(ctx context.Context, b provider.Adapter, req types.SimplificationRequest, fp string) (*types.SimplificationResult, error) {
	callCtx := ctx
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
	}

	caps := b.Capabilities()
	start := time.Now()
	res, err := b.Simplify(callCtx, req)
	elapsed := time.Since(start)

	kind := ""
	if err != nil {
		kind = string(provider.KindOf(err))
	}
	o.metrics.RecordLLMCall(ctx, caps.Name, err == nil, kind, elapsed)
	o.recordCall(ctx, caps, fp, req, err, elapsed)
	return res, err
}

func (o *modelOrchestrator) recordCall(ctx context.Context, caps provider.Capabilities, fp string, req types.SimplificationRequest, callErr error, elapsed time.Duration) {
	if o.recorder == nil {
		return
	}
	row := &types.AICallLog{
		Fingerprint: fp,
		Provider:    caps.Name,
		Model:       caps.Model,
		Success:     callErr == nil,
		LatencyMS:   elapsed.Milliseconds(),
		InputChars:  len(req.Text),
	}
	if callErr != nil {
		row.ErrorKind = string(provider.KindOf(callErr))
		row.Error = callErr.Error()
	}
	if err := o.recorder.Record(ctx, row); err != nil {
		o.log.Warn("failed to record ai call", "provider", caps.Name, "error", err.Error())
	}
}

// jaccardDistance compares lower-cased word sets: 0 means identical
// vocabulary, 1 means disjoint.
func jaccardDistance(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(union)
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(w, ".,;:!?\"'()")] = true
	}
	delete(out, "")
	return out
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
