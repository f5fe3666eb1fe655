package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/config"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/llm"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/logging"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/prompts"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/retry"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/workpool"
)

// Outcome reports what happened to a set of fields sent through AI
// fallback. Results always covers every input field exactly once: a
// field the provider could not classify carries the conservative
// fallback classification instead of being dropped.
type Outcome struct {
	Results       []*models.FieldClassification
	AIClassified  int
	FallbackUsed  int
	BatchCount    int
	FailedBatches int
}

// Scheduler partitions edge-case fields into adaptively sized batches,
// dispatches them to the classification provider, and degrades to the
// conservative policy when the provider cannot answer.
type Scheduler struct {
	client      llm.Client
	breaker     *llm.CircuitBreaker
	cfg         *config.BatchConfig
	temperature float64
	logger      *zap.Logger
}

// NewScheduler creates a batch scheduler. client may be nil when AI
// fallback is disabled; every field then takes the fallback path.
func NewScheduler(client llm.Client, breaker *llm.CircuitBreaker, cfg *config.BatchConfig, temperature float64, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		client:      client,
		breaker:     breaker,
		cfg:         cfg,
		temperature: temperature,
		logger:      logger.Named("scheduler"),
	}
}

// BatchSize computes the adaptive batch size for a workload. Larger
// schemas get larger batches to bound round trips; harder fields shrink
// the batch so the model keeps per-field attention. Always within
// [MinBatchSize, MaxBatchSize].
func (s *Scheduler) BatchSize(totalFields int, complexity float64) int {
	size := float64(s.cfg.BaseBatchSize)

	switch {
	case totalFields >= 1000:
		size *= 5
	case totalFields >= 200:
		size *= 3
	case totalFields >= 50:
		size *= 1.5
	}

	// complexity is in [0, 1]; the divisor halves batch size at the
	// hardest end and leaves easy workloads untouched.
	size /= 1 + clamp(complexity, 0, 1)

	bounded := int(size)
	if bounded < s.cfg.MinBatchSize {
		bounded = s.cfg.MinBatchSize
	}
	if bounded > s.cfg.MaxBatchSize {
		bounded = s.cfg.MaxBatchSize
	}
	return bounded
}

// Partition splits fields into batches of the adaptive size, preserving
// input order.
func (s *Scheduler) Partition(fields []models.ColumnDescriptor) [][]models.ColumnDescriptor {
	if len(fields) == 0 {
		return nil
	}

	size := s.BatchSize(len(fields), BatchComplexity(fields))
	batches := make([][]models.ColumnDescriptor, 0, (len(fields)+size-1)/size)
	for start := 0; start < len(fields); start += size {
		end := start + size
		if end > len(fields) {
			end = len(fields)
		}
		batches = append(batches, fields[start:end])
	}
	return batches
}

// Classify runs the full batch pipeline for the given edge-case fields.
// Every input field appears in the outcome exactly once.
func (s *Scheduler) Classify(ctx context.Context, fields []models.ColumnDescriptor, regulations []models.Regulation) *Outcome {
	outcome := &Outcome{}
	if len(fields) == 0 {
		return outcome
	}

	if s.client == nil {
		outcome.Results = s.fallbackFor(fields, "AI fallback disabled")
		outcome.FallbackUsed = len(fields)
		return outcome
	}

	batches := s.Partition(fields)
	outcome.BatchCount = len(batches)

	s.logger.Info("dispatching classification batches",
		zap.Int("fields", len(fields)),
		zap.Int("batches", len(batches)),
		zap.Float64("complexity", BatchComplexity(fields)))

	var batchResults [][]*models.FieldClassification
	if len(batches) >= s.cfg.ParallelThreshold && len(fields) >= s.cfg.MinFieldsParallel {
		batchResults = s.runParallel(ctx, batches, regulations)
	} else {
		batchResults = s.runSequential(ctx, batches, regulations)
	}

	for i, results := range batchResults {
		if results == nil {
			outcome.FailedBatches++
			fallback := s.fallbackFor(batches[i], "classification provider unavailable, manual review required")
			outcome.Results = append(outcome.Results, fallback...)
			outcome.FallbackUsed += len(fallback)
			continue
		}
		outcome.Results = append(outcome.Results, results...)
		outcome.AIClassified += len(results)
	}

	return outcome
}

func (s *Scheduler) runSequential(ctx context.Context, batches [][]models.ColumnDescriptor, regulations []models.Regulation) [][]*models.FieldClassification {
	results := make([][]*models.FieldClassification, len(batches))
	for i, batch := range batches {
		classified, err := s.processBatch(ctx, batch, regulations)
		if err != nil {
			s.logger.Warn("batch failed",
				zap.Int("batch", i),
				zap.Int("fields", len(batch)),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		results[i] = classified
	}
	return results
}

func (s *Scheduler) runParallel(ctx context.Context, batches [][]models.ColumnDescriptor, regulations []models.Regulation) [][]*models.FieldClassification {
	pool := workpool.New(workpool.Config{MaxConcurrent: s.cfg.MaxParallelBatches}, s.logger)

	items := make([]workpool.Item[indexedBatch], 0, len(batches))
	for i, batch := range batches {
		items = append(items, workpool.Item[indexedBatch]{
			ID: fmt.Sprintf("batch-%d", i),
			Execute: func(ctx context.Context) (indexedBatch, error) {
				classified, err := s.processBatch(ctx, batch, regulations)
				return indexedBatch{index: i, results: classified}, err
			},
		})
	}

	results := make([][]*models.FieldClassification, len(batches))
	for _, r := range workpool.Run(ctx, pool, items) {
		if r.Err != nil {
			s.logger.Warn("batch failed", zap.String("batch", r.ID), zap.String("error", logging.SanitizeError(r.Err)))
			continue
		}
		results[r.Value.index] = r.Value.results
	}
	return results
}

type indexedBatch struct {
	index   int
	results []*models.FieldClassification
}

// processBatch sends one batch to the provider with fixed-interval
// retries. A structurally incomplete response counts as a failure and
// is retried like a transport error; permanent provider errors (auth,
// unknown model) go straight to fallback without burning the retries.
func (s *Scheduler) processBatch(ctx context.Context, batch []models.ColumnDescriptor, regulations []models.Regulation) ([]*models.FieldClassification, error) {
	if allowed, err := s.breaker.Allow(); !allowed {
		return nil, err
	}

	prompt := prompts.BuildFieldClassificationPrompt(batch, regulations)
	system := prompts.BuildFieldClassificationSystemMessage()

	cfg := retry.Fixed(s.cfg.MaxRetries, s.cfg.RetryDelay())
	results, err := retry.DoWithResultIfRetryable(ctx, cfg, func() ([]*models.FieldClassification, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout())
		defer cancel()

		start := time.Now()
		raw, err := s.client.Complete(callCtx, prompt, system, s.temperature)
		if err != nil {
			return nil, fmt.Errorf("provider call failed: %w", err)
		}

		// Malformed output is provider nondeterminism, so a fresh
		// request may well succeed.
		parsed, err := llm.ParseJSONResponse[prompts.FieldClassificationResponse](raw)
		if err != nil {
			return nil, llm.NewError(llm.ErrorTypeUnknown, "unparseable provider response", true, err)
		}

		classified, err := s.validateResponse(batch, parsed, regulations)
		if err != nil {
			return nil, llm.NewError(llm.ErrorTypeUnknown, "invalid provider response", true, err)
		}

		s.logger.Debug("batch classified",
			zap.Int("fields", len(batch)),
			zap.Duration("elapsed", time.Since(start)))
		return classified, nil
	})
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}

	s.breaker.RecordSuccess()
	return results, nil
}

// validateResponse checks the structural contract: every requested field
// present exactly once, nothing invented. Violations fail the whole
// batch so the retry can ask again.
func (s *Scheduler) validateResponse(batch []models.ColumnDescriptor, resp prompts.FieldClassificationResponse, regulations []models.Regulation) ([]*models.FieldClassification, error) {
	byKey := make(map[string]prompts.FieldClassificationItem, len(resp.Classifications))
	for _, item := range resp.Classifications {
		byKey[item.TableName+"."+item.ColumnName] = item
	}

	results := make([]*models.FieldClassification, 0, len(batch))
	for _, col := range batch {
		item, ok := byKey[col.TableName+"."+col.ColumnName]
		if !ok {
			return nil, fmt.Errorf("incomplete response: field %s.%s missing", col.TableName, col.ColumnName)
		}
		results = append(results, s.toClassification(col, item, regulations))
	}
	return results, nil
}

func (s *Scheduler) toClassification(col models.ColumnDescriptor, item prompts.FieldClassificationItem, requested []models.Regulation) *models.FieldClassification {
	confidence := clamp(item.Confidence, 0, 1)

	category := models.Category(item.Category)
	if !knownCategory(category) {
		category = models.CategoryUnknown
	}

	risk := models.RiskLevel(item.Risk)
	switch risk {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
	default:
		risk = models.RiskMedium
	}

	// Only regulations the caller asked about may appear in output.
	var regs []models.Regulation
	for _, raw := range item.Regulations {
		reg := models.Regulation(raw)
		for _, want := range requested {
			if reg == want {
				regs = append(regs, reg)
				break
			}
		}
	}

	return &models.FieldClassification{
		SchemaName:     col.SchemaName,
		TableName:      col.TableName,
		ColumnName:     col.ColumnName,
		DataType:       col.DataType,
		IsSensitive:    item.IsSensitive,
		Category:       category,
		Risk:           risk,
		Regulations:    regs,
		Confidence:     confidence,
		ConfidenceBand: models.BandForConfidence(confidence),
		Method:         models.MethodAI,
		Rationale:      item.Reasoning,
	}
}

// fallbackFor applies the conservative policy: treat the field as
// sensitive at low confidence so it surfaces for manual review instead
// of silently passing as safe.
func (s *Scheduler) fallbackFor(fields []models.ColumnDescriptor, reason string) []*models.FieldClassification {
	results := make([]*models.FieldClassification, 0, len(fields))
	for _, col := range fields {
		results = append(results, &models.FieldClassification{
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
		})
	}
	return results
}

func knownCategory(c models.Category) bool {
	switch c {
	case models.CategoryEmail, models.CategoryPhone, models.CategoryName,
		models.CategoryAddress, models.CategoryNationalID, models.CategoryDateOfBirth,
		models.CategoryFinancial, models.CategoryMedical, models.CategoryBiometric,
		models.CategoryCredential, models.CategoryIPAddress, models.CategoryLocation,
		models.CategoryDemographic, models.CategoryTechnical, models.CategoryUnknown:
		return true
	}
	return false
}
