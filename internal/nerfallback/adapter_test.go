package nerfallback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/nerfallback"
	"github.com/herbarium-data/collector-canon/internal/resilience"
	llm "github.com/herbarium-data/collector-canon/pkg/provider/llm"
	"github.com/herbarium-data/collector-canon/pkg/provider/llm/mock"
)

func TestNullAdapter_NeverOverrides(t *testing.T) {
	var a nerfallback.NullAdapter
	got, err := a.Classify(context.Background(), "anything", 0.5)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.ImprovedCategory != "" || got.Discard {
		t.Errorf("NullAdapter should never override, got %+v", got)
	}
}

func jsonEntitiesResponse(body string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: body}
}

func TestLLMAdapter_TwoStrongPersonsPromotesToConjuntoPessoas(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[
			{"text":"Forzza, R.C.","label":"PERSON","score":0.95},
			{"text":"Silva, A.B.","label":"PERSON","score":0.90}
		]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "Forzza, R.C.; Silva, A.B.", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.ConjuntoPessoas || got.ImprovedConfidence != 0.90 {
		t.Errorf("got %+v, want ConjuntoPessoas/0.90", got)
	}
}

func TestLLMAdapter_OneStrongPersonPromotesToPessoa(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[{"text":"Forzza, R.C.","label":"PERSON","score":0.95}]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "Forzza, R.C.", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.Pessoa || got.ImprovedConfidence != 0.85 {
		t.Errorf("got %+v, want Pessoa/0.85", got)
	}
}

func TestLLMAdapter_ModeratePersonScore(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[{"text":"X","label":"PERSON","score":0.72}]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "some text", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.Pessoa || got.ImprovedConfidence != 0.75 {
		t.Errorf("got %+v, want Pessoa/0.75", got)
	}
}

func TestLLMAdapter_WeakPersonScore(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[{"text":"X","label":"PERSON","score":0.55}]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "some text", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.Pessoa || got.ImprovedConfidence != 0.70 {
		t.Errorf("got %+v, want Pessoa/0.70", got)
	}
}

func TestLLMAdapter_OrganizationOnlyPromotesToEmpresa(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[{"text":"EMBRAPA","label":"ORGANIZATION","score":0.92}]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "EMBRAPA", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.Empresa || got.ImprovedConfidence != 0.85 {
		t.Errorf("got %+v, want Empresa/0.85", got)
	}
}

func TestLLMAdapter_NoEntitiesDiscards(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "garbled text here", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if !got.Discard {
		t.Errorf("got %+v, want Discard=true", got)
	}
}

func TestLLMAdapter_TooShortTextDiscards(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse(`{"entities":[{"text":"Xy","label":"PERSON","score":0.99}]}`),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "xy", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if !got.Discard {
		t.Errorf("got %+v, want Discard=true (text under 3 alpha chars)", got)
	}
}

func TestLLMAdapter_UnparseableResponseDegradesGracefully(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse("not json at all"),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "some text", 0.5)
	if err != nil {
		t.Fatalf("expected graceful degradation, got error: %v", err)
	}
	if got.ImprovedCategory != "" || got.Discard {
		t.Errorf("got %+v, want zero-value Result (rule result stands)", got)
	}
}

func TestLLMAdapter_StripsMarkdownFences(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: jsonEntitiesResponse("```json\n{\"entities\":[{\"text\":\"EMBRAPA\",\"label\":\"ORGANIZATION\",\"score\":0.9}]}\n```"),
	}
	a := nerfallback.NewLLMAdapter(p)
	got, err := a.Classify(context.Background(), "EMBRAPA", 0.5)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got.ImprovedCategory != classify.Empresa {
		t.Errorf("got %+v, want Empresa", got)
	}
}

func TestLLMAdapter_CompleteErrorPropagates(t *testing.T) {
	p := &mock.Provider{CompleteErr: errors.New("backend unavailable")}
	a := nerfallback.NewLLMAdapter(p)
	_, err := a.Classify(context.Background(), "some text", 0.5)
	if err == nil {
		t.Fatal("expected error from Classify when Complete fails")
	}
}

func TestLLMAdapter_RespectsContextTimeout(t *testing.T) {
	p := &mock.Provider{
		CompleteDelay: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	}
	a := nerfallback.NewLLMAdapter(p)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := a.Classify(ctx, "some text", 0.5)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCircuitBreakerAdapter_OpensAfterRepeatedFailures(t *testing.T) {
	p := &mock.Provider{CompleteErr: errors.New("backend down")}
	inner := nerfallback.NewLLMAdapter(p)
	cb := nerfallback.NewCircuitBreakerAdapter(inner, resilience.CircuitBreakerConfig{
		Name:        "test-ner",
		MaxFailures: 2,
	})

	for i := 0; i < 2; i++ {
		got, err := cb.Classify(context.Background(), "some text", 0.5)
		if err != nil {
			t.Fatalf("call %d: expected graceful degradation, got error: %v", i, err)
		}
		if got.ImprovedCategory != "" {
			t.Errorf("call %d: expected zero-value Result, got %+v", i, got)
		}
	}

	// Breaker should now be open; the underlying provider should not be
	// called again.
	before := len(p.CompleteCalls)
	_, err := cb.Classify(context.Background(), "some text", 0.5)
	if err != nil {
		t.Fatalf("expected graceful degradation when breaker is open, got error: %v", err)
	}
	if len(p.CompleteCalls) != before {
		t.Error("expected breaker to short-circuit the call to the provider")
	}
}
