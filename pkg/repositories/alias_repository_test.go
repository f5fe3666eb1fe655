package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/testhelpers"
)

func newTestAlias(name string, scope models.Scope, status models.ValidationStatus) *models.FieldAlias {
	return &models.FieldAlias{
		StandardField: "email",
		AliasName:     name,
		Category:      models.CategoryEmail,
		Risk:          models.RiskHigh,
		Regulations:   []models.Regulation{models.RegulationGDPR, models.RegulationCCPA},
		Confidence:    0.9,
		CompanyID:     scope.CompanyID,
		Region:        scope.Region,
		Status:        status,
	}
}

func TestAliasRepositoryCreateAndGetByName(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	alias := newTestAlias("correo", models.Scope{}, models.AliasApproved)
	require.NoError(t, repo.Create(ctx, alias))
	assert.NotEqual(t, uuid.Nil, alias.ID)

	found, err := repo.GetByName(ctx, "correo", models.Scope{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "email", found[0].StandardField)
	assert.Equal(t, models.CategoryEmail, found[0].Category)
	assert.Equal(t, []models.Regulation{models.RegulationGDPR, models.RegulationCCPA}, found[0].Regulations)
}

func TestAliasRepositoryCreateDuplicateConflict(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{}, models.AliasApproved)))

	err := repo.Create(ctx, newTestAlias("correo", models.Scope{}, models.AliasPending))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Same name in a different scope is a separate alias.
	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{CompanyID: "acme"}, models.AliasApproved)))
}

func TestAliasRepositoryScopeVisibility(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{}, models.AliasApproved)))
	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{CompanyID: "acme"}, models.AliasApproved)))
	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{CompanyID: "other"}, models.AliasApproved)))
	require.NoError(t, repo.Create(ctx, newTestAlias("correo", models.Scope{Region: "eu"}, models.AliasApproved)))

	// Company scope sees its own alias first, then the global one. The
	// other company's alias and the region-scoped alias stay hidden.
	found, err := repo.GetByName(ctx, "correo", models.Scope{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "acme", found[0].CompanyID)
	assert.Empty(t, found[1].CompanyID)

	// Global scope sees only the global alias.
	found, err = repo.GetByName(ctx, "correo", models.Scope{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Empty(t, found[0].CompanyID)
	assert.Empty(t, found[0].Region)
}

func TestAliasRepositoryUpsertReplacesClassification(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	original := newTestAlias("mbr_no", models.Scope{}, models.AliasPending)
	require.NoError(t, repo.Create(ctx, original))

	updated := newTestAlias("mbr_no", models.Scope{}, models.AliasApproved)
	updated.StandardField = "member_number"
	updated.Category = models.CategoryNationalID
	require.NoError(t, repo.Upsert(ctx, updated))

	// Upsert keeps the original row identity.
	assert.Equal(t, original.ID, updated.ID)

	found, err := repo.GetByName(ctx, "mbr_no", models.Scope{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "member_number", found[0].StandardField)
	assert.Equal(t, models.AliasApproved, found[0].Status)
}

func TestAliasRepositoryUsageAndOutcomeCounters(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	alias := newTestAlias("correo", models.Scope{}, models.AliasApproved)
	require.NoError(t, repo.Create(ctx, alias))

	require.NoError(t, repo.RecordUsage(ctx, alias.ID))
	require.NoError(t, repo.RecordUsage(ctx, alias.ID))
	require.NoError(t, repo.RecordOutcome(ctx, alias.ID, true))
	require.NoError(t, repo.RecordOutcome(ctx, alias.ID, false))

	found, err := repo.GetByName(ctx, "correo", models.Scope{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].UsageCount)
	assert.Equal(t, 1, found[0].SuccessCount)
	assert.Equal(t, 1, found[0].FailureCount)
	assert.NotNil(t, found[0].LastUsedAt)
	assert.InDelta(t, 0.5, found[0].AccuracyRate(), 1e-9)

	assert.ErrorIs(t, repo.RecordUsage(ctx, uuid.New()), apperrors.ErrNotFound)
}

func TestAliasRepositoryUpdateStatus(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	alias := newTestAlias("usr_mail", models.Scope{}, models.AliasPending)
	require.NoError(t, repo.Create(ctx, alias))

	require.NoError(t, repo.UpdateStatus(ctx, alias.ID, models.AliasApproved))

	approved, err := repo.ListByStatus(ctx, models.AliasApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, alias.ID, approved[0].ID)

	pending, err := repo.ListByStatus(ctx, models.AliasPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), models.AliasRejected), apperrors.ErrNotFound)
}

func TestAliasRepositoryStats(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateTables(t)

	ctx := context.Background()
	repo := NewAliasRepository(tdb.DB)

	a := newTestAlias("correo", models.Scope{}, models.AliasApproved)
	b := newTestAlias("usr_mail", models.Scope{}, models.AliasPending)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.RecordUsage(ctx, a.ID))
	require.NoError(t, repo.RecordOutcome(ctx, a.ID, true))
	require.NoError(t, repo.RecordOutcome(ctx, a.ID, true))
	require.NoError(t, repo.RecordOutcome(ctx, a.ID, false))

	stats, err := repo.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAliases)
	assert.Equal(t, 1, stats.ApprovedAliases)
	assert.Equal(t, 1, stats.PendingAliases)
	assert.Equal(t, 1, stats.TotalUsage)
	assert.InDelta(t, 2.0/3.0, stats.AccuracyRate, 1e-9)
	require.Len(t, stats.TopUsed, 1)
	assert.Equal(t, a.ID, stats.TopUsed[0].ID)
}
