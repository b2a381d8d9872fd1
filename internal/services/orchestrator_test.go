package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caselight/caselight-backend/internal/cache"
	"github.com/caselight/caselight-backend/internal/platform/provider"
	"github.com/caselight/caselight-backend/internal/types"
)

type fakeAdapter struct {
	name  string
	calls int32
	// respond receives the 1-based call number.
	respond func(call int32) (*types.SimplificationResult, error)
}

func (f *fakeAdapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Name: f.name, Model: f.name + "-model", MaxInputChars: 100000}
}

func (f *fakeAdapter) Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	return f.respond(n)
}

func (f *fakeAdapter) callCount() int32 { return atomic.LoadInt32(&f.calls) }

func okResult(backend, text string, conf float64) *types.SimplificationResult {
	return &types.SimplificationResult{
		SimplifiedText: text,
		Confidence:     conf,
		BackendUsed:    backend,
		GeneratedAt:    time.Now().UTC(),
	}
}

func classified(name string, kind provider.ErrorKind) error {
	return &provider.ClassifiedError{Provider: name, Kind: kind, Err: errors.New("simulated")}
}

type recordingSink struct {
	mu   sync.Mutex
	rows []*types.AICallLog
}

func (s *recordingSink) Record(ctx context.Context, row *types.AICallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func newTestOrchestrator(t *testing.T, cfg OrchestratorConfig, recorder AICallRecorder, backends ...provider.Adapter) *modelOrchestrator {
	t.Helper()
	o := NewModelOrchestrator(
		testLogger(t),
		backends,
		cache.NewResultCache(testLogger(t), 32),
		recorder,
		nil,
		cfg,
	).(*modelOrchestrator)
	o.sleep = func(ctx context.Context, d time.Duration) {}
	return o
}

func simpleReq(text string) types.SimplificationRequest {
	return types.SimplificationRequest{Text: text, ComplexityLevel: types.ComplexityHighSchool}
}

func TestSimplifyConcurrentFingerprintsShareOneCall(t *testing.T) {
	release := make(chan struct{})
	primary := &fakeAdapter{name: "primary", respond: func(call int32) (*types.SimplificationResult, error) {
		<-release
		return okResult("primary", "shared answer", 0.9), nil
	}}
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: time.Millisecond}, nil, primary)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*types.SimplificationResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Simplify(context.Background(), simpleReq("identical text"))
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].SimplifiedText != "shared answer" {
			t.Fatalf("caller %d got %q", i, results[i].SimplifiedText)
		}
	}
	if n := primary.callCount(); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
}

func TestSimplifyInvalidRequestFallsThroughWithoutRetry(t *testing.T) {
	primary := &fakeAdapter{name: "primary", respond: func(call int32) (*types.SimplificationResult, error) {
		return nil, classified("primary", provider.KindInvalidRequest)
	}}
	secondary := &fakeAdapter{name: "secondary", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("secondary", "from secondary", 0.8), nil
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: time.Millisecond}, sink, primary, secondary)

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "secondary" {
		t.Errorf("BackendUsed = %q, want secondary", res.BackendUsed)
	}
	if n := primary.callCount(); n != 1 {
		t.Errorf("primary called %d times, want 1 (no retry on invalid_request)", n)
	}
	if n := secondary.callCount(); n != 1 {
		t.Errorf("secondary called %d times, want 1", n)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.rows) != 2 {
		t.Fatalf("recorded %d call rows, want 2", len(sink.rows))
	}
	if sink.rows[0].Success || sink.rows[0].ErrorKind != string(provider.KindInvalidRequest) {
		t.Errorf("first audit row = %+v", sink.rows[0])
	}
	if !sink.rows[1].Success {
		t.Errorf("second audit row = %+v", sink.rows[1])
	}
}

func TestSimplifyRetriesTransientOnceThenSucceeds(t *testing.T) {
	primary := &fakeAdapter{name: "primary", respond: func(call int32) (*types.SimplificationResult, error) {
		if call == 1 {
			return nil, classified("primary", provider.KindRateLimited)
		}
		return okResult("primary", "second try", 0.9), nil
	}}
	secondary := &fakeAdapter{name: "secondary", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("secondary", "never", 0.5), nil
	}}

	var slept []time.Duration
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: 500 * time.Millisecond}, nil, primary, secondary)
	o.sleep = func(ctx context.Context, d time.Duration) { slept = append(slept, d) }

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "primary" {
		t.Errorf("BackendUsed = %q, want primary", res.BackendUsed)
	}
	if n := primary.callCount(); n != 2 {
		t.Errorf("primary called %d times, want 2", n)
	}
	if n := secondary.callCount(); n != 0 {
		t.Errorf("secondary called %d times, want 0", n)
	}
	if len(slept) != 1 || slept[0] != 500*time.Millisecond {
		t.Errorf("backoff sleeps = %v, want one sleep of base delay", slept)
	}
}

func TestSimplifyRetryHonorsProviderRetryAfter(t *testing.T) {
	primary := &fakeAdapter{name: "primary", respond: func(call int32) (*types.SimplificationResult, error) {
		if call == 1 {
			return nil, &provider.ClassifiedError{
				Provider:   "primary",
				Kind:       provider.KindRateLimited,
				RetryAfter: 7 * time.Second,
				Err:        errors.New("slow down"),
			}
		}
		return okResult("primary", "after backoff", 0.9), nil
	}}

	var slept []time.Duration
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: 500 * time.Millisecond}, nil, primary)
	o.sleep = func(ctx context.Context, d time.Duration) { slept = append(slept, d) }

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.SimplifiedText != "after backoff" {
		t.Errorf("SimplifiedText = %q", res.SimplifiedText)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Errorf("backoff sleeps = %v, want the provider's Retry-After over the base delay", slept)
	}
}

func TestSimplifyExhaustionReturnsUnavailable(t *testing.T) {
	failing := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, respond: func(call int32) (*types.SimplificationResult, error) {
			return nil, classified(name, provider.KindUnavailable)
		}}
	}
	primary := failing("primary")
	secondary := failing("secondary")
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: time.Millisecond}, nil, primary, secondary)

	_, err := o.Simplify(context.Background(), simpleReq("doc"))
	if !errors.Is(err, ErrSimplifyUnavailable) {
		t.Fatalf("err = %v, want ErrSimplifyUnavailable", err)
	}

	// Transient failures earn one retry each before falling through.
	if n := primary.callCount(); n != 2 {
		t.Errorf("primary called %d times, want 2", n)
	}
	if n := secondary.callCount(); n != 2 {
		t.Errorf("secondary called %d times, want 2", n)
	}

	placeholder := PlaceholderResult(err)
	if !placeholder.Unavailable {
		t.Error("placeholder not marked unavailable")
	}
	if placeholder.ReasonCode != types.ReasonBackendsExhausted {
		t.Errorf("ReasonCode = %q, want %q", placeholder.ReasonCode, types.ReasonBackendsExhausted)
	}

	// A failed computation is not cached: the next call hits backends again.
	_, err = o.Simplify(context.Background(), simpleReq("doc"))
	if !errors.Is(err, ErrSimplifyUnavailable) {
		t.Fatalf("second call err = %v", err)
	}
	if n := primary.callCount(); n != 4 {
		t.Errorf("primary called %d times after second attempt, want 4", n)
	}
}

func TestSimplifyNoBackendsConfigured(t *testing.T) {
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: time.Millisecond}, nil)

	_, err := o.Simplify(context.Background(), simpleReq("doc"))
	if !errors.Is(err, ErrSimplifyUnavailable) {
		t.Fatalf("err = %v, want ErrSimplifyUnavailable", err)
	}
	if placeholder := PlaceholderResult(err); placeholder.ReasonCode != types.ReasonNoBackends {
		t.Errorf("ReasonCode = %q, want %q", placeholder.ReasonCode, types.ReasonNoBackends)
	}
}

func TestConsensusPicksHighestConfidence(t *testing.T) {
	a := &fakeAdapter{name: "a", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("a", "the tenant pays rent monthly", 0.7), nil
	}}
	b := &fakeAdapter{name: "b", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("b", "the tenant pays rent every month", 0.9), nil
	}}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Consensus:           true,
		RetryBase:           time.Millisecond,
		DivergenceThreshold: 0.65,
	}, nil, a, b)

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "b" {
		t.Errorf("BackendUsed = %q, want b (higher confidence)", res.BackendUsed)
	}
	if res.Degraded {
		t.Error("similar answers flagged degraded")
	}
	if a.callCount() != 1 || b.callCount() != 1 {
		t.Errorf("call counts a=%d b=%d, want 1 each", a.callCount(), b.callCount())
	}
}

func TestConsensusTiePrefersEarlierBackend(t *testing.T) {
	mk := func(name, text string) *fakeAdapter {
		return &fakeAdapter{name: name, respond: func(call int32) (*types.SimplificationResult, error) {
			return okResult(name, text, 0.8), nil
		}}
	}
	first := mk("first", "you pay rent monthly")
	second := mk("second", "you pay rent monthly")
	o := newTestOrchestrator(t, OrchestratorConfig{
		Consensus:           true,
		RetryBase:           time.Millisecond,
		DivergenceThreshold: 0.65,
	}, nil, first, second)

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "first" {
		t.Errorf("BackendUsed = %q, want first on a confidence tie", res.BackendUsed)
	}
}

func TestConsensusDivergenceFlagsDegraded(t *testing.T) {
	a := &fakeAdapter{name: "a", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("a", "the landlord may evict the tenant for unpaid rent", 0.9), nil
	}}
	b := &fakeAdapter{name: "b", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("b", "arbitration resolves every dispute between both signing parties", 0.7), nil
	}}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Consensus:           true,
		RetryBase:           time.Millisecond,
		DivergenceThreshold: 0.65,
	}, nil, a, b)

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "a" {
		t.Errorf("BackendUsed = %q, want a", res.BackendUsed)
	}
	if !res.Degraded {
		t.Error("divergent consensus not flagged degraded")
	}
}

func TestConsensusSurvivesOneBackendFailure(t *testing.T) {
	good := &fakeAdapter{name: "good", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("good", "a fine answer", 0.8), nil
	}}
	bad := &fakeAdapter{name: "bad", respond: func(call int32) (*types.SimplificationResult, error) {
		return nil, classified("bad", provider.KindInvalidRequest)
	}}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Consensus:           true,
		RetryBase:           time.Millisecond,
		DivergenceThreshold: 0.65,
	}, nil, good, bad)

	res, err := o.Simplify(context.Background(), simpleReq("doc"))
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.BackendUsed != "good" {
		t.Errorf("BackendUsed = %q, want good", res.BackendUsed)
	}
	if res.Degraded {
		t.Error("single-result consensus flagged degraded")
	}
}

func TestJaccardDistance(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"the tenant pays rent", "the tenant pays rent", 0, 0},
		{"", "", 0, 0},
		{"alpha beta gamma", "delta epsilon zeta", 1, 1},
		{"the tenant pays rent monthly", "the tenant pays rent every month", 0.2, 0.6},
	}
	for _, tc := range tests {
		d := jaccardDistance(tc.a, tc.b)
		if d < tc.min || d > tc.max {
			t.Errorf("jaccardDistance(%q, %q) = %v, want in [%v, %v]", tc.a, tc.b, d, tc.min, tc.max)
		}
	}
}

func TestSimplifyDistinctFingerprintsDistinctCalls(t *testing.T) {
	primary := &fakeAdapter{name: "primary", respond: func(call int32) (*types.SimplificationResult, error) {
		return okResult("primary", fmt.Sprintf("answer %d", call), 0.9), nil
	}}
	o := newTestOrchestrator(t, OrchestratorConfig{RetryBase: time.Millisecond}, nil, primary)

	r1, err := o.Simplify(context.Background(), simpleReq("document one"))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := o.Simplify(context.Background(), simpleReq("document two"))
	if err != nil {
		t.Fatal(err)
	}
	if r1.SimplifiedText == r2.SimplifiedText {
		t.Error("distinct fingerprints returned the same computed result")
	}
	if n := primary.callCount(); n != 2 {
		t.Errorf("backend called %d times, want 2", n)
	}
}
