// Package services wires the classification pipeline together: cache
// lookup, local matching, alias learning, AI fallback, validation, and
// session reporting.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/aliases"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/cache"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/config"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/matcher"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/scheduler"
)

// Pipeline stage names recorded in the session's workflow steps.
const (
	StageInit       = "init"
	StageCacheCheck = "cache_check"
	StageLocal      = "local_classification"
	StageEdges      = "edge_collection"
	StageAIFallback = "ai_fallback"
	StageValidation = "validation"
	StageCacheStore = "cache_store"
	StageReport     = "report"
)

// ClassifyRequest is one schema classification job.
type ClassifyRequest struct {
	Tables      models.SchemaSet
	Regulations []models.Regulation
	Scope       models.Scope
}

// Orchestrator drives a classification session through the pipeline
// stages. It owns no state between calls; everything lives on the
// session it returns.
type Orchestrator struct {
	matcher    *matcher.Matcher
	aliasStore *aliases.Store
	cache      cache.Cache
	scheduler  *scheduler.Scheduler
	cfg        *config.ClassifierConfig
	logger     *zap.Logger
}

// NewOrchestrator creates the pipeline orchestrator. aliasStore may be
// nil when no alias storage is configured; the pipeline then runs on
// patterns alone.
func NewOrchestrator(
	m *matcher.Matcher,
	aliasStore *aliases.Store,
	resultCache cache.Cache,
	sched *scheduler.Scheduler,
	cfg *config.ClassifierConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		matcher:    m,
		aliasStore: aliasStore,
		cache:      resultCache,
		scheduler:  sched,
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
	}
}

// ClassifySchema classifies every column in the request against the
// requested regulations. The returned session always carries exactly
// one result per input field unless the run was cancelled, in which
// case completed results are surfaced and the status is partial.
func (o *Orchestrator) ClassifySchema(ctx context.Context, req *ClassifyRequest) (*models.ClassificationSession, error) {
	session := models.NewClassificationSession(req.Regulations, req.Scope)

	stepStart := time.Now()
	if err := o.validateRequest(req); err != nil {
		session.Status = models.SessionFailed
		session.AddStep(StageInit, models.StepFailed, err.Error(), stepStart)
		session.CompletedAt = time.Now()
		return session, err
	}
	session.TotalFields = req.Tables.FieldCount()
	session.AddStep(StageInit, models.StepCompleted,
		fmt.Sprintf("%d fields across %d tables", session.TotalFields, len(req.Tables)), stepStart)

	o.logger.Info("classification session started",
		zap.String("session_id", session.ID.String()),
		zap.Int("fields", session.TotalFields),
		zap.Int("tables", len(req.Tables)))

	// Results accumulate keyed by field so later stages can never
	// duplicate earlier ones.
	resolved := make(map[string]*models.FieldClassification, session.TotalFields)

	storedFingerprint, fromCacheOnly := o.runCacheCheck(ctx, session, req, resolved)

	pending := o.pendingFields(req, resolved)

	storageDegraded := false
	if len(pending) > 0 {
		storageDegraded = o.runLocalClassification(ctx, session, req, pending, resolved)
	} else {
		session.AddStep(StageLocal, models.StepSkipped, "all fields cached", time.Now())
	}

	edges := o.collectEdges(session, req, resolved)

	if len(edges) > 0 {
		o.runAIFallback(ctx, session, req, edges, resolved)
	} else {
		session.AddStep(StageAIFallback, models.StepSkipped, "no edge cases", time.Now())
	}

	cancelled := ctx.Err() != nil

	o.runValidation(session, req, resolved)

	if !cancelled && !fromCacheOnly && storedFingerprint != "" && !session.Degraded() {
		o.runCacheStore(ctx, session, req, storedFingerprint)
	} else {
		session.AddStep(StageCacheStore, models.StepSkipped, "results not cacheable", time.Now())
	}

	o.buildReport(session)

	switch {
	case cancelled:
		session.Status = models.SessionPartial
	case session.Degraded() || storageDegraded:
		session.Status = models.SessionDegraded
	default:
		session.Status = models.SessionCompleted
	}
	session.CompletedAt = time.Now()

	o.logger.Info("classification session finished",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(session.Status)),
		zap.Int("local_hits", session.LocalHits),
		zap.Int("ai_hits", session.AIHits),
		zap.Int("cache_hits", session.CacheHits),
		zap.Int("fallbacks", session.FallbackCount))

	return session, nil
}

func (o *Orchestrator) validateRequest(req *ClassifyRequest) error {
	if req == nil || req.Tables.FieldCount() == 0 {
		return apperrors.ErrEmptySchema
	}
	if len(req.Regulations) == 0 {
		return apperrors.ErrNoRegulations
	}
	for _, reg := range req.Regulations {
		if !reg.IsKnown() {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownRegulation, reg)
		}
	}
	return nil
}

// runCacheCheck resolves fields from a cached entry when its coverage
// clears the configured threshold. Returns the fingerprint to store new
// results under, and whether the whole request was served from cache.
func (o *Orchestrator) runCacheCheck(ctx context.Context, session *models.ClassificationSession, req *ClassifyRequest, resolved map[string]*models.FieldClassification) (fingerprint string, fromCacheOnly bool) {
	stepStart := time.Now()

	if !o.cfg.EnableCache {
		session.AddStep(StageCacheCheck, models.StepSkipped, "cache disabled", stepStart)
		return "", false
	}

	fingerprint = cache.Fingerprint(req.Tables, req.Regulations, req.Scope)

	entry, found, err := o.cache.Get(ctx, fingerprint)
	if err != nil {
		// A broken cache never fails a session.
		o.logger.Warn("cache lookup failed", zap.Error(err))
		session.AddStep(StageCacheCheck, models.StepFailed, "cache unavailable", stepStart)
		return fingerprint, false
	}
	if !found {
		session.AddStep(StageCacheCheck, models.StepCompleted, "cache miss", stepStart)
		return fingerprint, false
	}

	ratio, covered := cache.Coverage(entry, req.Tables)
	if ratio < o.cfg.CacheCoverageThreshold {
		session.AddStep(StageCacheCheck, models.StepCompleted,
			fmt.Sprintf("cache hit below coverage threshold (%.0f%%)", ratio*100), stepStart)
		return fingerprint, false
	}

	for key, result := range covered {
		clone := *result
		clone.CacheHit = true
		clone.Method = models.MethodCache
		resolved[key] = &clone
	}
	session.CacheHits = len(covered)
	session.AddStep(StageCacheCheck, models.StepCompleted,
		fmt.Sprintf("served %d of %d fields from cache (%.0f%% coverage)",
			len(covered), session.TotalFields, ratio*100), stepStart)

	return fingerprint, len(covered) == session.TotalFields
}

// pendingFields lists columns not yet resolved, grouped by table.
func (o *Orchestrator) pendingFields(req *ClassifyRequest, resolved map[string]*models.FieldClassification) models.SchemaSet {
	pending := make(models.SchemaSet)
	for tableName, columns := range req.Tables {
		for _, col := range columns {
			if _, done := resolved[tableName+"."+col.ColumnName]; done {
				continue
			}
			pending[tableName] = append(pending[tableName], col)
		}
	}
	return pending
}

// runLocalClassification resolves fields through aliases and patterns.
// Returns whether alias storage was unavailable during the run.
func (o *Orchestrator) runLocalClassification(ctx context.Context, session *models.ClassificationSession, req *ClassifyRequest, pending models.SchemaSet, resolved map[string]*models.FieldClassification) (storageDegraded bool) {
	stepStart := time.Now()

	aliasStore := o.aliasStore
	if aliasStore != nil {
		if err := aliasStore.Available(ctx); err != nil {
			o.logger.Warn("alias store unavailable, continuing with patterns only", zap.Error(err))
			aliasStore = nil
			storageDegraded = true
		}
	}

	tableNames := pending.TableNames()

	if len(tableNames) > o.cfg.TableParallelThreshold {
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(o.cfg.MaxTableWorkers)
		for _, tableName := range tableNames {
			columns := pending[tableName]
			group.Go(func() error {
				results := o.classifyTable(groupCtx, aliasStore, columns, req)
				mu.Lock()
				for key, result := range results {
					resolved[key] = result
				}
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; unresolved fields surface as
		// edge cases downstream.
		_ = group.Wait()
	} else {
		for _, tableName := range tableNames {
			for key, result := range o.classifyTable(ctx, aliasStore, pending[tableName], req) {
				resolved[key] = result
			}
		}
	}

	session.LocalHits = len(resolved) - session.CacheHits
	session.AddStep(StageLocal, models.StepCompleted,
		fmt.Sprintf("%d fields resolved locally", session.LocalHits), stepStart)
	return storageDegraded
}

// classifyTable resolves one table's columns. Alias matches take
// precedence over shipped patterns: organization-specific knowledge
// beats generic stems.
func (o *Orchestrator) classifyTable(ctx context.Context, aliasStore *aliases.Store, columns []models.ColumnDescriptor, req *ClassifyRequest) map[string]*models.FieldClassification {
	results := make(map[string]*models.FieldClassification)

	for _, col := range columns {
		if aliasStore != nil {
			match, found, err := aliasStore.FindMatch(ctx, col.ColumnName, req.Scope)
			if err != nil {
				o.logger.Warn("alias lookup error",
					zap.String("column", col.ColumnName),
					zap.Error(err))
			} else if found {
				result := match.Classification(col)
				result.Regulations = intersectRegulations(result.Regulations, req.Regulations)
				if o.resolvesLocally(result) {
					results[result.FieldKey()] = result
					continue
				}
			}
		}

		if result, ok := o.matchPatterns(col, req); ok {
			results[result.FieldKey()] = result
		}
	}

	return results
}

// matchPatterns runs the pattern matcher per regulation and keeps the
// strongest result, restricted to the regulations actually requested.
func (o *Orchestrator) matchPatterns(col models.ColumnDescriptor, req *ClassifyRequest) (*models.FieldClassification, bool) {
	tableContext := req.Tables[col.TableName]

	var best *models.FieldClassification
	for _, reg := range req.Regulations {
		result, ok := o.matcher.Classify(col, reg, tableContext)
		if !ok {
			continue
		}
		if best == nil || result.Confidence > best.Confidence {
			best = result
		}
	}
	if best == nil || !o.resolvesLocally(best) {
		return nil, false
	}

	best.Regulations = intersectRegulations(best.Regulations, req.Regulations)
	return best, true
}

// resolvesLocally decides whether a local match settles the field. A
// sensitive match always resolves regardless of confidence: routing a
// known-sensitive field to the provider leaks more than it clarifies.
func (o *Orchestrator) resolvesLocally(result *models.FieldClassification) bool {
	return result.Confidence >= o.cfg.LocalConfidenceThreshold || result.IsSensitive
}

// collectEdges lists the fields local classification could not resolve.
func (o *Orchestrator) collectEdges(session *models.ClassificationSession, req *ClassifyRequest, resolved map[string]*models.FieldClassification) []models.ColumnDescriptor {
	stepStart := time.Now()

	var edges []models.ColumnDescriptor
	for _, tableName := range req.Tables.TableNames() {
		for _, col := range req.Tables[tableName] {
			if _, done := resolved[tableName+"."+col.ColumnName]; !done {
				edges = append(edges, col)
			}
		}
	}

	session.AddStep(StageEdges, models.StepCompleted,
		fmt.Sprintf("%d edge cases", len(edges)), stepStart)
	return edges
}

func (o *Orchestrator) runAIFallback(ctx context.Context, session *models.ClassificationSession, req *ClassifyRequest, edges []models.ColumnDescriptor, resolved map[string]*models.FieldClassification) {
	stepStart := time.Now()

	if !o.cfg.EnableAI || o.scheduler == nil {
		for _, col := range edges {
			resolved[col.TableName+"."+col.ColumnName] = conservativeFallback(col, "AI fallback disabled, manual review required")
		}
		session.FallbackCount += len(edges)
		session.AddStep(StageAIFallback, models.StepSkipped,
			fmt.Sprintf("AI disabled, %d fields marked for review", len(edges)), stepStart)
		return
	}

	outcome := o.scheduler.Classify(ctx, edges, req.Regulations)
	for _, result := range outcome.Results {
		resolved[result.FieldKey()] = result
	}
	session.AIHits += outcome.AIClassified
	session.FallbackCount += outcome.FallbackUsed

	status := models.StepCompleted
	if outcome.FailedBatches > 0 {
		status = models.StepFailed
	}
	session.AddStep(StageAIFallback, status,
		fmt.Sprintf("%d AI classified, %d fallback, %d/%d batches failed",
			outcome.AIClassified, outcome.FallbackUsed, outcome.FailedBatches, outcome.BatchCount), stepStart)
}

// runValidation assembles the final result list in deterministic order
// and counts anything structurally unusable. Cancelled runs surface
// whatever completed.
func (o *Orchestrator) runValidation(session *models.ClassificationSession, req *ClassifyRequest, resolved map[string]*models.FieldClassification) {
	stepStart := time.Now()

	results := make([]*models.FieldClassification, 0, len(resolved))
	for _, tableName := range req.Tables.TableNames() {
		for _, col := range req.Tables[tableName] {
			result, ok := resolved[tableName+"."+col.ColumnName]
			if !ok {
				continue
			}
			if !result.Valid() {
				session.ValidationErrors++
				continue
			}
			results = append(results, result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TableName != results[j].TableName {
			return results[i].TableName < results[j].TableName
		}
		return results[i].ColumnName < results[j].ColumnName
	})

	session.Results = results
	session.AddStep(StageValidation, models.StepCompleted,
		fmt.Sprintf("%d results validated, %d dropped", len(results), session.ValidationErrors), stepStart)
}

// runCacheStore persists a fully classified, non-degraded result set.
func (o *Orchestrator) runCacheStore(ctx context.Context, session *models.ClassificationSession, req *ClassifyRequest, fingerprint string) {
	stepStart := time.Now()

	if len(session.Results) != session.TotalFields {
		session.AddStep(StageCacheStore, models.StepSkipped, "incomplete result set", stepStart)
		return
	}

	_, err := o.cache.Put(ctx, &cache.Entry{
		Fingerprint: fingerprint,
		Regulations: req.Regulations,
		Scope:       req.Scope,
		FieldCount:  session.TotalFields,
		Results:     session.Results,
	})
	if err != nil {
		o.logger.Warn("cache store failed", zap.Error(err))
		session.AddStep(StageCacheStore, models.StepFailed, "cache unavailable", stepStart)
		return
	}

	session.AddStep(StageCacheStore, models.StepCompleted,
		fmt.Sprintf("cached %d results", len(session.Results)), stepStart)
}

func (o *Orchestrator) buildReport(session *models.ClassificationSession) {
	stepStart := time.Now()

	report := &models.SessionReport{
		ConfidenceHistogram: make(map[models.ConfidenceBand]int),
		ByRegulation:        make(map[models.Regulation]int),
		ByMethod:            make(map[models.DetectionMethod]int),
	}

	for _, r := range session.Results {
		report.ConfidenceHistogram[r.ConfidenceBand]++
		report.ByMethod[r.Method]++
		for _, reg := range r.Regulations {
			report.ByRegulation[reg]++
		}
	}

	if session.TotalFields > 0 {
		report.LocalCoverageRate = float64(session.LocalHits+session.CacheHits) / float64(session.TotalFields)
		report.AIUsageRate = float64(session.AIHits+session.FallbackCount) / float64(session.TotalFields)
		report.CacheHitRate = float64(session.CacheHits) / float64(session.TotalFields)
	}
	report.LocalTargetMet = report.LocalCoverageRate >= o.cfg.LocalCoverageTarget
	report.AITargetMet = report.AIUsageRate <= o.cfg.AIUsageTarget

	session.Report = report
	session.AddStep(StageReport, models.StepCompleted, "", stepStart)
}

// conservativeFallback marks a field sensitive at low confidence so it
// is reviewed rather than ignored.
func conservativeFallback(col models.ColumnDescriptor, reason string) *models.FieldClassification {
	return &models.FieldClassification{
		SchemaName:     col.SchemaName,
		TableName:      col.TableName,
		ColumnName:     col.ColumnName,
		DataType:       col.DataType,
		IsSensitive:    true,
		Category:       models.CategoryUnknown,
		Risk:           models.RiskHigh,
		Confidence:     0.3,
		ConfidenceBand: models.BandForConfidence(0.3),
		Method:         models.MethodFallback,
		Rationale:      reason,
	}
}

func intersectRegulations(have, requested []models.Regulation) []models.Regulation {
	var out []models.Regulation
	for _, reg := range have {
		for _, want := range requested {
			if reg == want {
				out = append(out, reg)
				break
			}
		}
	}
	return out
}
