package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/aliases"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/cache"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/config"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/llm"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/matcher"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/prompts"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/scheduler"
)

// memCache is an in-memory cache.Cache for pipeline tests.
type memCache struct {
	entries map[string]*cache.Entry
	getErr  error
	putErr  error
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*cache.Entry)}
}

func (m *memCache) Get(ctx context.Context, fingerprint string) (*cache.Entry, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	entry, ok := m.entries[fingerprint]
	return entry, ok, nil
}

func (m *memCache) Put(ctx context.Context, entry *cache.Entry) (uuid.UUID, error) {
	if m.putErr != nil {
		return uuid.Nil, m.putErr
	}
	m.puts++
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.entries[entry.Fingerprint] = entry
	return entry.ID, nil
}

var _ cache.Cache = (*memCache)(nil)

func testClassifierConfig() *config.ClassifierConfig {
	return &config.ClassifierConfig{
		LocalConfidenceThreshold: 0.5,
		FuzzyThreshold:           0.8,
		CacheCoverageThreshold:   0.85,
		TableParallelThreshold:   2,
		MaxTableWorkers:          4,
		LocalCoverageTarget:      0.95,
		AIUsageTarget:            0.10,
		EnableCache:              true,
		EnableAI:                 true,
	}
}

func testScheduler(t *testing.T, client llm.Client) *scheduler.Scheduler {
	t.Helper()
	breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	cfg := &config.BatchConfig{
		BaseBatchSize:      10,
		MinBatchSize:       5,
		MaxBatchSize:       50,
		MaxRetries:         1,
		RetryDelayMillis:   1,
		BatchTimeoutSecs:   5,
		ParallelThreshold:  4,
		MaxParallelBatches: 4,
		MinFieldsParallel:  50,
	}
	return scheduler.NewScheduler(client, breaker, cfg, 0.1, zap.NewNop())
}

func newTestOrchestrator(t *testing.T, client llm.Client, resultCache cache.Cache, cfg *config.ClassifierConfig) *Orchestrator {
	t.Helper()
	library, err := matcher.DefaultLibrary()
	require.NoError(t, err)
	m := matcher.New(library, matcher.DefaultConfig())
	if resultCache == nil {
		resultCache = cache.NewNoop()
	}
	return NewOrchestrator(m, nil, resultCache, testScheduler(t, client), cfg, zap.NewNop())
}

// answerAll builds a mock provider that classifies any requested field
// as non-sensitive TECHNICAL.
func answerAll(tables models.SchemaSet) func(ctx context.Context, prompt, system string, temp float64) (string, error) {
	var items []prompts.FieldClassificationItem
	for tableName, columns := range tables {
		for _, col := range columns {
			items = append(items, prompts.FieldClassificationItem{
				TableName:   tableName,
				ColumnName:  col.ColumnName,
				IsSensitive: false,
				Category:    "TECHNICAL",
				Risk:        "low",
				Confidence:  0.85,
				Reasoning:   "internal column",
			})
		}
	}
	payload, _ := json.Marshal(prompts.FieldClassificationResponse{Classifications: items})
	return func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return string(payload), nil
	}
}

func gdpr() []models.Regulation {
	return []models.Regulation{models.RegulationGDPR}
}

func TestClassifySchemaInputValidation(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockClient(), nil, testClassifierConfig())
	ctx := context.Background()

	session, err := o.ClassifySchema(ctx, &ClassifyRequest{Tables: models.SchemaSet{}, Regulations: gdpr()})
	assert.ErrorIs(t, err, apperrors.ErrEmptySchema)
	assert.Equal(t, models.SessionFailed, session.Status)

	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "email", DataType: "text"}},
	}

	_, err = o.ClassifySchema(ctx, &ClassifyRequest{Tables: tables})
	assert.ErrorIs(t, err, apperrors.ErrNoRegulations)

	_, err = o.ClassifySchema(ctx, &ClassifyRequest{
		Tables:      tables,
		Regulations: []models.Regulation{"PIPEDA"},
	})
	assert.ErrorIs(t, err, apperrors.ErrUnknownRegulation)
}

func TestClassifySchemaAllLocal(t *testing.T) {
	client := llm.NewMockClient()
	o := newTestOrchestrator(t, client, nil, testClassifierConfig())

	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "email", DataType: "text"},
			{TableName: "users", ColumnName: "phone_number", DataType: "text"},
			{TableName: "users", ColumnName: "date_of_birth", DataType: "date"},
		},
	}

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 3, session.TotalFields)
	assert.Equal(t, 3, session.LocalHits)
	assert.Zero(t, session.AIHits)
	assert.Zero(t, session.FallbackCount)
	require.Len(t, session.Results, 3)
	for _, r := range session.Results {
		assert.True(t, r.IsSensitive)
		assert.Equal(t, models.MethodLocalPattern, r.Method)
	}

	// The provider is never consulted for a fully local run.
	assert.Zero(t, client.CompleteCalls())

	require.NotNil(t, session.Report)
	assert.Equal(t, 1.0, session.Report.LocalCoverageRate)
	assert.True(t, session.Report.LocalTargetMet)
	assert.True(t, session.Report.AITargetMet)
}

func TestClassifySchemaEdgeCasesGoToAI(t *testing.T) {
	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "email", DataType: "text"},
			{TableName: "users", ColumnName: "xr_blob_7", DataType: "bytea"},
		},
	}
	client := llm.NewMockClient()
	client.CompleteFunc = answerAll(tables)
	o := newTestOrchestrator(t, client, nil, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 1, session.LocalHits)
	assert.Equal(t, 1, session.AIHits)
	require.Len(t, session.Results, 2)

	byKey := make(map[string]*models.FieldClassification)
	for _, r := range session.Results {
		byKey[r.FieldKey()] = r
	}
	assert.Equal(t, models.MethodLocalPattern, byKey["users.email"].Method)
	assert.Equal(t, models.MethodAI, byKey["users.xr_blob_7"].Method)
	assert.False(t, byKey["users.xr_blob_7"].IsSensitive)
}

func TestClassifySchemaProviderFailureDegrades(t *testing.T) {
	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "xr_blob_7", DataType: "bytea"},
		},
	}
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", errors.New("connection refused")
	}
	o := newTestOrchestrator(t, client, nil, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionDegraded, session.Status)
	assert.Equal(t, 1, session.FallbackCount)
	require.Len(t, session.Results, 1)
	assert.Equal(t, models.MethodFallback, session.Results[0].Method)
	assert.True(t, session.Results[0].IsSensitive)
}

func TestClassifySchemaAIDisabledMarksForReview(t *testing.T) {
	cfg := testClassifierConfig()
	cfg.EnableAI = false

	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "email", DataType: "text"},
			{TableName: "users", ColumnName: "xr_blob_7", DataType: "bytea"},
		},
	}
	client := llm.NewMockClient()
	o := newTestOrchestrator(t, client, nil, cfg)

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionDegraded, session.Status)
	assert.Equal(t, 1, session.FallbackCount)
	assert.Zero(t, client.CompleteCalls())
}

func TestClassifySchemaCacheRoundTrip(t *testing.T) {
	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "email", DataType: "text"},
			{TableName: "users", ColumnName: "phone_number", DataType: "text"},
		},
	}
	mc := newMemCache()
	o := newTestOrchestrator(t, llm.NewMockClient(), mc, testClassifierConfig())
	req := &ClassifyRequest{Tables: tables, Regulations: gdpr()}

	first, err := o.ClassifySchema(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, first.Status)
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, 1, mc.puts)

	second, err := o.ClassifySchema(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, second.Status)
	assert.Equal(t, 2, second.CacheHits)
	assert.Zero(t, second.LocalHits)
	require.Len(t, second.Results, 2)
	for _, r := range second.Results {
		assert.True(t, r.CacheHit)
		assert.Equal(t, models.MethodCache, r.Method)
	}

	// A fully cached run must not write the entry back.
	assert.Equal(t, 1, mc.puts)
	assert.InDelta(t, 1.0, second.Report.CacheHitRate, 1e-9)
}

func TestClassifySchemaDegradedRunsAreNeverCached(t *testing.T) {
	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "xr_blob_7", DataType: "bytea"}},
	}
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", errors.New("boom")
	}
	mc := newMemCache()
	o := newTestOrchestrator(t, client, mc, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)
	assert.Equal(t, models.SessionDegraded, session.Status)
	assert.Zero(t, mc.puts)
}

func TestClassifySchemaCacheErrorDegradesGracefully(t *testing.T) {
	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "email", DataType: "text"}},
	}
	mc := newMemCache()
	mc.getErr = errors.New("connection refused")
	o := newTestOrchestrator(t, llm.NewMockClient(), mc, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	// The pipeline still classifies everything locally.
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 1, session.LocalHits)
	require.Len(t, session.Results, 1)
}

func TestClassifySchemaScopedCacheKeys(t *testing.T) {
	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "email", DataType: "text"}},
	}
	mc := newMemCache()
	o := newTestOrchestrator(t, llm.NewMockClient(), mc, testClassifierConfig())

	_, err := o.ClassifySchema(context.Background(), &ClassifyRequest{
		Tables: tables, Regulations: gdpr(), Scope: models.Scope{CompanyID: "acme"},
	})
	require.NoError(t, err)

	// Same schema under a different scope is a different cache identity.
	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{
		Tables: tables, Regulations: gdpr(), Scope: models.Scope{CompanyID: "other"},
	})
	require.NoError(t, err)
	assert.Zero(t, session.CacheHits)
	assert.Equal(t, 2, mc.puts)
}

func TestClassifySchemaManyTablesParallel(t *testing.T) {
	tables := models.SchemaSet{}
	for _, name := range []string{"users", "orders", "patients", "devices", "events"} {
		tables[name] = []models.ColumnDescriptor{
			{TableName: name, ColumnName: "email", DataType: "text"},
			{TableName: name, ColumnName: "phone", DataType: "text"},
		}
	}
	o := newTestOrchestrator(t, llm.NewMockClient(), nil, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 10, session.LocalHits)
	require.Len(t, session.Results, 10)

	// Results are deterministic: sorted by table then column, no field
	// missing or duplicated.
	seen := make(map[string]bool)
	for _, r := range session.Results {
		assert.False(t, seen[r.FieldKey()])
		seen[r.FieldKey()] = true
	}
	assert.Len(t, seen, 10)
}

func TestClassifySchemaRegulationScoping(t *testing.T) {
	// prescription is HIPAA-scoped; a GDPR-only run must not resolve it
	// locally as medical data.
	tables := models.SchemaSet{
		"meds": {{TableName: "meds", ColumnName: "prescription", DataType: "text"}},
	}
	client := llm.NewMockClient()
	client.CompleteFunc = answerAll(tables)
	o := newTestOrchestrator(t, client, nil, testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)
	require.Len(t, session.Results, 1)
	assert.Equal(t, models.MethodAI, session.Results[0].Method)

	hipaa, err := o.ClassifySchema(context.Background(), &ClassifyRequest{
		Tables:      tables,
		Regulations: []models.Regulation{models.RegulationHIPAA},
	})
	require.NoError(t, err)
	require.Len(t, hipaa.Results, 1)
	assert.Equal(t, models.MethodLocalPattern, hipaa.Results[0].Method)
	assert.Equal(t, models.CategoryMedical, hipaa.Results[0].Category)
}

func TestClassifySchemaWorkflowStepsRecorded(t *testing.T) {
	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "email", DataType: "text"}},
	}
	o := newTestOrchestrator(t, llm.NewMockClient(), newMemCache(), testClassifierConfig())

	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	stages := make([]string, 0, len(session.Steps))
	for _, step := range session.Steps {
		stages = append(stages, step.Stage)
	}
	assert.Equal(t, []string{
		StageInit, StageCacheCheck, StageLocal, StageEdges,
		StageAIFallback, StageValidation, StageCacheStore, StageReport,
	}, stages)
}

func TestClassifySchemaAliasStorePreferred(t *testing.T) {
	alias := &models.FieldAlias{
		ID:            uuid.New(),
		StandardField: "national_id",
		AliasName:     "mbrno",
		Category:      models.CategoryNationalID,
		Risk:          models.RiskCritical,
		Regulations:   []models.Regulation{models.RegulationGDPR},
		Confidence:    0.9,
		Status:        models.AliasApproved,
	}
	repo := &stubAliasRepo{byName: map[string][]*models.FieldAlias{"mbrno": {alias}}}
	store := aliases.NewStore(repo, &stubLearningRepo{}, 0.8, zap.NewNop())

	library, err := matcher.DefaultLibrary()
	require.NoError(t, err)
	m := matcher.New(library, matcher.DefaultConfig())
	o := NewOrchestrator(m, store, cache.NewNoop(), testScheduler(t, llm.NewMockClient()), testClassifierConfig(), zap.NewNop())

	tables := models.SchemaSet{
		"members": {{TableName: "members", ColumnName: "Mbr_No", DataType: "text"}},
	}
	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, session.Status)
	require.Len(t, session.Results, 1)
	assert.Equal(t, models.MethodLocalAlias, session.Results[0].Method)
	assert.Equal(t, models.CategoryNationalID, session.Results[0].Category)
}

func TestClassifySchemaAliasStoreOutageDegrades(t *testing.T) {
	repo := &stubAliasRepo{statsErr: errors.New("connection refused")}
	store := aliases.NewStore(repo, &stubLearningRepo{}, 0.8, zap.NewNop())

	library, err := matcher.DefaultLibrary()
	require.NoError(t, err)
	m := matcher.New(library, matcher.DefaultConfig())
	o := NewOrchestrator(m, store, cache.NewNoop(), testScheduler(t, llm.NewMockClient()), testClassifierConfig(), zap.NewNop())

	tables := models.SchemaSet{
		"users": {{TableName: "users", ColumnName: "email", DataType: "text"}},
	}
	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	// Patterns still classify the field; the outage only degrades.
	assert.Equal(t, models.SessionDegraded, session.Status)
	require.Len(t, session.Results, 1)
	assert.Equal(t, models.MethodLocalPattern, session.Results[0].Method)
}

func TestClassifySchemaCancellationMarksPartialAndSkipsCache(t *testing.T) {
	tables := models.SchemaSet{
		"users": {
			{TableName: "users", ColumnName: "email", DataType: "text"},
			{TableName: "users", ColumnName: "xr_blob_7", DataType: "bytea"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The provider answers normally but the caller gives up mid-flight.
	answer := answerAll(tables)
	client := llm.NewMockClient()
	client.CompleteFunc = func(callCtx context.Context, prompt, system string, temp float64) (string, error) {
		cancel()
		return answer(callCtx, prompt, system, temp)
	}

	mc := newMemCache()
	o := newTestOrchestrator(t, client, mc, testClassifierConfig())

	session, err := o.ClassifySchema(ctx, &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	assert.Equal(t, models.SessionPartial, session.Status)
	// Work finished before cancellation is still surfaced.
	require.Len(t, session.Results, 2)
	// A cancelled run is never written back to the cache.
	assert.Equal(t, 0, mc.puts)
}

func TestClassifySchemaAliasPrecisionNeverLowersConfidence(t *testing.T) {
	tables := models.SchemaSet{
		"contacts": {{TableName: "contacts", ColumnName: "home_phone", DataType: "text"}},
	}

	baseline := newTestOrchestrator(t, llm.NewMockClient(), nil, testClassifierConfig())
	before, err := baseline.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)
	require.Len(t, before.Results, 1)
	require.Equal(t, models.MethodLocalPattern, before.Results[0].Method)

	alias := &models.FieldAlias{
		ID:            uuid.New(),
		StandardField: "phone_number",
		AliasName:     "homephone",
		Category:      models.CategoryPhone,
		Risk:          models.RiskHigh,
		Regulations:   []models.Regulation{models.RegulationGDPR},
		Confidence:    0.95,
		Status:        models.AliasApproved,
	}
	repo := &stubAliasRepo{byName: map[string][]*models.FieldAlias{"homephone": {alias}}}
	store := aliases.NewStore(repo, &stubLearningRepo{}, 0.8, zap.NewNop())

	library, err := matcher.DefaultLibrary()
	require.NoError(t, err)
	m := matcher.New(library, matcher.DefaultConfig())
	o := NewOrchestrator(m, store, cache.NewNoop(), testScheduler(t, llm.NewMockClient()), testClassifierConfig(), zap.NewNop())

	after, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)
	require.Len(t, after.Results, 1)

	// The organization-specific alias wins and never reports weaker
	// confidence than the shipped pattern it displaces.
	assert.Equal(t, models.MethodLocalAlias, after.Results[0].Method)
	assert.GreaterOrEqual(t, after.Results[0].Confidence, before.Results[0].Confidence)
}

func TestClassifySchemaSensitiveAliasBelowThresholdStillResolvesLocally(t *testing.T) {
	alias := &models.FieldAlias{
		ID:            uuid.New(),
		StandardField: "national_id",
		AliasName:     "mbrno",
		Category:      models.CategoryNationalID,
		Risk:          models.RiskCritical,
		Regulations:   []models.Regulation{models.RegulationGDPR},
		Confidence:    0.4,
		Status:        models.AliasApproved,
	}
	repo := &stubAliasRepo{byName: map[string][]*models.FieldAlias{"mbrno": {alias}}}
	store := aliases.NewStore(repo, &stubLearningRepo{}, 0.8, zap.NewNop())

	library, err := matcher.DefaultLibrary()
	require.NoError(t, err)
	m := matcher.New(library, matcher.DefaultConfig())
	client := llm.NewMockClient()
	o := NewOrchestrator(m, store, cache.NewNoop(), testScheduler(t, client), testClassifierConfig(), zap.NewNop())

	tables := models.SchemaSet{
		"members": {{TableName: "members", ColumnName: "Mbr_No", DataType: "text"}},
	}
	session, err := o.ClassifySchema(context.Background(), &ClassifyRequest{Tables: tables, Regulations: gdpr()})
	require.NoError(t, err)

	// A sensitive match resolves locally even below the confidence
	// threshold instead of being sent to the provider.
	assert.Equal(t, models.SessionCompleted, session.Status)
	require.Len(t, session.Results, 1)
	assert.Equal(t, models.MethodLocalAlias, session.Results[0].Method)
	assert.InDelta(t, 0.4, session.Results[0].Confidence, 1e-9)
	assert.Equal(t, 0, client.CompleteCalls())
}
