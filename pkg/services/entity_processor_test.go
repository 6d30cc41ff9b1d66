package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

func sitesStore() *table.Store {
	store := table.NewStore()
	store.Put("sites", table.New([]string{"site_id", "site_name", "system_id"}, [][]any{
		{1, "Abisko", int64(1)},
		{2, "Lund", int64(2)},
	}))
	return store
}

func samplesConfig(fk models.ForeignKeySpec) *models.Configuration {
	return models.NewConfiguration(
		&models.EntitySpec{
			Name:        "samples",
			Type:        models.EntityTypeFixed,
			Columns:     []string{"sample_id", "site_id"},
			Values:      [][]any{{10, 1}, {11, 2}, {12, 9}},
			ForeignKeys: []models.ForeignKeySpec{fk},
		},
		&models.EntitySpec{
			Name:        "sites",
			Type:        models.EntityTypeFixed,
			Columns:     []string{"site_id", "site_name"},
			SurrogateID: "system_id",
		},
	)
}

var fixedMaterializer = materializeFunc(func(ctx context.Context, spec *models.EntitySpec, store *table.Store, maxRows int) (*table.Table, error) {
	return fixedRows(spec), nil
})

func TestEntityProcessor_LinksSurrogateAndExtraColumns(t *testing.T) {
	fk := siteFK(nil)
	fk.ExtraColumns = []string{"site_name", "missing_column"}
	store := sitesStore()

	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), samplesConfig(fk), "samples", fixedMaterializer, store, models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.EntityStatusSuccess, result.Status)
	assert.Equal(t, 3, result.RowsIn)
	assert.Equal(t, 3, result.RowsOut)
	assert.Empty(t, result.JoinTests)
	assert.True(t, containsSubstring(result.Warnings, `column "missing_column" not found in sites`))

	linked, ok := store.Get("samples")
	require.True(t, ok)
	assert.Equal(t, []string{"sample_id", "site_id", "system_id", "site_name"}, linked.Columns)
	assert.Equal(t, []any{12, 9, nil, nil}, linked.Rows[2])
	assert.Equal(t, []any{10, 1, int64(1), "Abisko"}, linked.Rows[0])
}

func TestEntityProcessor_ConstraintViolationFailsEntity(t *testing.T) {
	fk := siteFK(&models.ForeignKeyConstraints{RequireAllLeftMatched: true})
	processor := NewEntityProcessor(zap.NewNop())

	store := sitesStore()
	result, err := processor.Process(context.Background(), samplesConfig(fk), "samples", fixedMaterializer, store, models.RunOptions{ValidateConstraints: true})
	require.Error(t, err)
	assert.Equal(t, models.EntityStatusFailed, result.Status)
	assert.Equal(t, []string{models.IssueUnmatchedLeftRows}, issueCodes(result.Issues))
	assert.False(t, store.Has("samples"))

	// Without constraint validation the same link succeeds.
	result, err = processor.Process(context.Background(), samplesConfig(fk), "samples", fixedMaterializer, store, models.RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
}

func TestEntityProcessor_FailedJoinTestIsWarning(t *testing.T) {
	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), samplesConfig(siteFK(nil)), "samples", fixedMaterializer, sitesStore(),
		models.RunOptions{ValidateForeignKeys: true, JoinSampleSize: 100})
	require.NoError(t, err)

	require.Len(t, result.JoinTests, 1)
	test := result.JoinTests[0]
	assert.Equal(t, 3, test.Statistics.TotalRows)
	assert.Equal(t, 2, test.Statistics.MatchedRows)
	assert.False(t, test.Success)
	assert.Equal(t, []string{models.IssueJoinTestFailed}, issueCodes(result.Issues))
	assert.Equal(t, models.EntityStatusSuccess, result.Status)
}

// regionsConfig chains two foreign keys: the second joins on a column the
// first one links in.
func regionsConfig(regionKey string) *models.Configuration {
	oneToOne := &models.ForeignKeyConstraints{Cardinality: models.CardinalityOneToOne}
	return models.NewConfiguration(
		&models.EntitySpec{
			Name:    "samples",
			Type:    models.EntityTypeFixed,
			Columns: []string{"sample_id", "site_id"},
			Values:  [][]any{{10, 1}, {11, 2}},
			ForeignKeys: []models.ForeignKeySpec{
				{Entity: "sites", LocalKeys: []string{"site_id"}, RemoteKeys: []string{"site_id"},
					ExtraColumns: []string{"region_code"}, Constraints: oneToOne},
				{Entity: "regions", LocalKeys: []string{regionKey}, RemoteKeys: []string{"region_code"},
					Constraints: oneToOne},
			},
		},
		&models.EntitySpec{
			Name:        "sites",
			Type:        models.EntityTypeFixed,
			Columns:     []string{"site_id", "site_name", "region_code"},
			SurrogateID: "system_id",
		},
		&models.EntitySpec{
			Name:        "regions",
			Type:        models.EntityTypeFixed,
			Columns:     []string{"region_code"},
			SurrogateID: "region_pk",
		},
	)
}

func regionsStore() *table.Store {
	store := table.NewStore()
	store.Put("sites", table.New([]string{"site_id", "site_name", "region_code", "system_id"}, [][]any{
		{1, "Abisko", "N", int64(1)},
		{2, "Lund", "S", int64(2)},
	}))
	store.Put("regions", table.New([]string{"region_code", "region_pk"}, [][]any{
		{"N", int64(1)},
		{"S", int64(2)},
	}))
	return store
}

func TestEntityProcessor_ChainedForeignKeys(t *testing.T) {
	store := regionsStore()
	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), regionsConfig("region_code"), "samples", fixedMaterializer, store,
		models.RunOptions{ValidateForeignKeys: true, ValidateConstraints: true, JoinSampleSize: 100})
	require.NoError(t, err)
	assert.Equal(t, models.EntityStatusSuccess, result.Status)
	assert.Empty(t, result.Issues)

	require.Len(t, result.JoinTests, 2)
	regions := result.JoinTests[1]
	assert.Empty(t, regions.Error)
	assert.Equal(t, 2, regions.Statistics.MatchedRows)
	assert.True(t, regions.Success)

	linked, ok := store.Get("samples")
	require.True(t, ok)
	assert.Equal(t, []string{"sample_id", "site_id", "system_id", "region_code", "region_pk"}, linked.Columns)
	assert.Equal(t, []any{10, 1, int64(1), "N", int64(1)}, linked.Rows[0])
}

func TestEntityProcessor_UntestableKeyIsRecorded(t *testing.T) {
	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), regionsConfig("area_code"), "samples", fixedMaterializer, regionsStore(),
		models.RunOptions{ValidateForeignKeys: true, JoinSampleSize: 100})

	// The key cannot be linked either, so the entity fails, but the first
	// test and the reason for the second are both kept.
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidKeys)
	require.Len(t, result.JoinTests, 2)
	assert.True(t, result.JoinTests[0].Success)
	assert.False(t, result.JoinTests[1].Success)
	assert.Contains(t, result.JoinTests[1].Error, "local [area_code] not in samples")
	assert.Equal(t, []string{models.IssueJoinTestFailed}, issueCodes(result.Issues))
	assert.Equal(t, models.IssueSeverityWarning, result.Issues[0].Severity)
}

func TestEntityProcessor_KeyMismatch(t *testing.T) {
	fk := siteFK(nil)
	fk.RemoteKeys = []string{"id"}

	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), samplesConfig(fk), "samples", fixedMaterializer, sitesStore(), models.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidKeys)

	var mismatch *apperrors.KeyMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"id"}, mismatch.MissingRemote)
	assert.Equal(t, models.EntityStatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestEntityProcessor_RemoteNotProcessed(t *testing.T) {
	_, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), samplesConfig(siteFK(nil)), "samples", fixedMaterializer, table.NewStore(), models.RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote entity has not been processed")
}

func TestEntityProcessor_MaterializeError(t *testing.T) {
	failing := materializeFunc(func(ctx context.Context, spec *models.EntitySpec, store *table.Store, maxRows int) (*table.Table, error) {
		return nil, errors.New("connection refused")
	})

	result, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), samplesConfig(siteFK(nil)), "samples", failing, sitesStore(), models.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, "materialize samples: connection refused", result.Error)
	assert.Zero(t, result.RowsIn)
}

func TestEntityProcessor_MissingColumns(t *testing.T) {
	cfg := models.NewConfiguration(&models.EntitySpec{
		Name:    "sites",
		Type:    models.EntityTypeFixed,
		Columns: []string{"site_id", "elevation"},
	})
	raw := materializeFunc(func(ctx context.Context, spec *models.EntitySpec, store *table.Store, maxRows int) (*table.Table, error) {
		return table.New([]string{"site_id"}, [][]any{{1}}), nil
	})

	_, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), cfg, "sites", raw, table.NewStore(), models.RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrMissingColumns)
}

func TestEntityProcessor_UnknownEntity(t *testing.T) {
	_, err := NewEntityProcessor(zap.NewNop()).Process(context.Background(), models.NewConfiguration(), "ghost", fixedMaterializer, table.NewStore(), models.RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
