package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// fakeExtractor is a scripted tier for cascade tests.
type fakeExtractor struct {
	tier    models.PipelineTier
	pages   []interfaces.PageResult
	err     error
	errOnce bool
	calls   int
}

func (f *fakeExtractor) Tier() models.PipelineTier               { return f.tier }
func (f *fakeExtractor) Supports(tier models.PipelineTier) bool  { return tier == f.tier }
func (f *fakeExtractor) EstimatedCost(pages int) float64         { return float64(pages) }
func (f *fakeExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil && (!f.errOnce || f.calls == 1) {
		return nil, f.err
	}
	return f.pages, nil
}

// fakeLLM is a scripted structured-extraction provider.
type fakeLLM struct {
	services  []models.Service
	err       error
	textCalls int
}

func (f *fakeLLM) ExtractServicesFromText(ctx context.Context, text string) ([]models.Service, error) {
	f.textCalls++
	return f.services, f.err
}

func (f *fakeLLM) ExtractServicesFromImage(ctx context.Context, imagePath string) ([]models.Service, error) {
	return f.services, f.err
}

func (f *fakeLLM) ExtractRequirementsFromText(ctx context.Context, text string) ([]models.Requirement, error) {
	return nil, nil
}

func (f *fakeLLM) ExtractAttestationMetadata(ctx context.Context, text string) (models.AttestationMetadata, error) {
	return models.AttestationMetadata{}, nil
}

func (f *fakeLLM) ProviderName() string { return "fake" }

func testPipelineConfig() *common.PipelineConfig {
	return &common.PipelineConfig{
		MinConfidenceLocal: 0.70,
		MinConfidenceCloud: 0.85,
		EnableCloudOCR:     true,
		EnableVision:       true,
	}
}

func pagesWith(conf float64, text string) []interfaces.PageResult {
	return []interfaces.PageResult{{PageNumber: 1, Text: text, Confidence: conf}}
}

func newTestOrchestrator(cfg *common.PipelineConfig, llm interfaces.LLMService, tiers ...interfaces.Extractor) *Orchestrator {
	return NewOrchestrator(common.GetLogger(), cfg, nil, tiers, llm)
}

func TestCascade_NativeTextPassesGate(t *testing.T) {
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "1.1 Paving asphalt layer 1200 M2\n1.2 Concrete curb 300 M")}
	local := &fakeExtractor{tier: models.TierLocalOCR}
	llm := &fakeLLM{services: []models.Service{
		{ItemCode: "1.1", Description: "Paving asphalt layer", Quantity: qty(1200), Unit: "M2"},
		{ItemCode: "1.2", Description: "Concrete curb", Quantity: qty(300), Unit: "M"},
	}}

	o := newTestOrchestrator(testPipelineConfig(), llm, native, local)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, models.TierNativeText, result.TierUsed)
	assert.Equal(t, 0, local.calls, "cheaper tier sufficed, no escalation")
	require.Len(t, result.Services, 2)
	assert.Equal(t, "Paving asphalt layer", result.Services[0].Description)
	assert.Equal(t, "Concrete curb", result.Services[1].Description)
}

func TestCascade_EscalatesThroughTiers(t *testing.T) {
	// Scanned low-contrast document: native sees no text layer, local OCR
	// comes in under its gate, cloud OCR recovers a table.
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(0, "")}
	local := &fakeExtractor{tier: models.TierLocalOCR, pages: pagesWith(0.55, "garbled")}
	cloud := &fakeExtractor{tier: models.TierCloudOCR, pages: []interfaces.PageResult{{
		PageNumber: 1,
		Text:       "recovered",
		Confidence: 0.92,
		Tables: []interfaces.Table{{Rows: [][]string{
			{"1.1", "Pavimentação asfáltica", "1.200", "M2"},
		}}},
	}}}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, native, local, cloud)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "scan.pdf", PageCount: 1}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, models.TierCloudOCR, result.TierUsed)
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 1, cloud.calls)
	assert.NotEmpty(t, result.Services)
	assert.Equal(t, 0, llm.textCalls, "tabular rows preempt the text pass")
}

func TestCascade_TierHintSkipsCheaperTiers(t *testing.T) {
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "text")}
	local := &fakeExtractor{tier: models.TierLocalOCR, pages: pagesWith(0.9, "ocr text")}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, native, local)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, models.TierLocalOCR, nil)
	require.NoError(t, err)

	assert.Equal(t, models.TierLocalOCR, result.TierUsed)
	assert.Equal(t, 0, native.calls)
}

func TestCascade_TransientErrorRetriedInPlace(t *testing.T) {
	local := &fakeExtractor{
		tier:    models.TierLocalOCR,
		pages:   pagesWith(0.9, "ocr text"),
		err:     Transient(models.TierLocalOCR, errors.New("engine hiccup")),
		errOnce: true,
	}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, local)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, models.TierLocalOCR, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, local.calls, "transient failure retried on the same tier")
	assert.Equal(t, models.TierLocalOCR, result.TierUsed)
}

func TestCascade_PermanentErrorEscalates(t *testing.T) {
	local := &fakeExtractor{
		tier: models.TierLocalOCR,
		err:  Permanent(models.TierLocalOCR, errors.New("unreadable at this tier")),
	}
	cloud := &fakeExtractor{tier: models.TierCloudOCR, pages: pagesWith(0.9, "recovered")}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, local, cloud)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, models.TierLocalOCR, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, local.calls, "permanent failure escalates without retry")
	assert.Equal(t, models.TierCloudOCR, result.TierUsed)
}

func TestCascade_TerminalTierFailureFailsJob(t *testing.T) {
	vision := &fakeExtractor{
		tier: models.TierVisionAI,
		err:  Terminal(models.TierVisionAI, errors.New("provider down")),
	}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, vision)
	_, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, models.TierVisionAI, nil)
	require.Error(t, err)
	assert.Equal(t, KindTerminal, KindOf(err))
}

func TestCascade_DisabledTiersUseBestAvailable(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.EnableCloudOCR = false
	cfg.EnableVision = false

	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(0, "")}
	local := &fakeExtractor{tier: models.TierLocalOCR, pages: pagesWith(0.55, "best effort text")}
	llm := &fakeLLM{services: []models.Service{
		{Description: "Algum serviço", Quantity: qty(10), Unit: "UN"},
	}}

	o := newTestOrchestrator(cfg, llm, native, local)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, "", nil)
	require.NoError(t, err, "sub-gate output beats failing when escalation is disabled")

	assert.Equal(t, models.TierLocalOCR, result.TierUsed)
	assert.Equal(t, 1, llm.textCalls)
	require.Len(t, result.Services, 1)
}

func TestCascade_EmptyDocumentCompletesEmpty(t *testing.T) {
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "")}
	llm := &fakeLLM{}

	o := newTestOrchestrator(testPipelineConfig(), llm, native)
	result, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "empty.pdf", PageCount: 1}, "", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Services)
	assert.Equal(t, 0, llm.textCalls, "nothing to send to the model")
}

func TestCascade_CancellationStopsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "text")}
	o := newTestOrchestrator(testPipelineConfig(), &fakeLLM{}, native)
	_, err := o.Process(ctx, &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCascade_ProgressStageBoundaries(t *testing.T) {
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "some text")}
	llm := &fakeLLM{services: []models.Service{
		{Description: "Serviço", Quantity: qty(1), Unit: "UN"},
	}}

	var stages []string
	o := newTestOrchestrator(testPipelineConfig(), llm, native)
	_, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, "", func(p models.JobProgress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.StageTexto, // tier start
		models.StageTexto, // tier done
		models.StageMerge,
		models.StageIA,
		models.StageFinal,
	}, stages)
}

func TestCascade_StructuredPassFailureIsTerminal(t *testing.T) {
	native := &fakeExtractor{tier: models.TierNativeText, pages: pagesWith(1.0, "some text")}
	llm := &fakeLLM{err: fmt.Errorf("schema violation")}

	o := newTestOrchestrator(testPipelineConfig(), llm, native)
	_, err := o.Process(context.Background(), &interfaces.DocumentFile{Path: "doc.pdf", PageCount: 1}, "", nil)
	require.Error(t, err)
	assert.Equal(t, KindTerminal, KindOf(err))
}
