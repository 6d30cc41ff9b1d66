package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

func siteSource() *table.Table {
	return table.New([]string{"site_id", "site_name", "lat", "lon", "notes"}, [][]any{
		{1, "Alpha", 59.1, 10.2, "x"},
		{2, "Beta", 60.0, 11.0, nil},
		{1, "Alpha", 59.1, 10.2, "y"},
		{3, "", nil, nil, nil},
	})
}

func TestGetSubset_ProjectionKeepsRows(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())
	src := siteSource()

	res, err := ext.GetSubset(src, []string{"site_name", "site_id"}, SubsetOptions{EntityName: "site", RaiseIfMissing: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"site_name", "site_id"}, res.Table.Columns)
	assert.Equal(t, src.Len(), res.Table.Len())
	assert.Empty(t, res.Warnings)
	// source untouched
	assert.Len(t, src.Columns, 5)
}

func TestGetSubset_MissingColumnRaises(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	_, err := ext.GetSubset(siteSource(), []string{"site_id", "altitude", "country"}, SubsetOptions{EntityName: "site", RaiseIfMissing: true})
	require.Error(t, err)

	var missingErr *apperrors.MissingColumnsError
	require.True(t, errors.As(err, &missingErr))
	assert.Equal(t, "site", missingErr.Entity)
	assert.Equal(t, []string{"altitude", "country"}, missingErr.Columns)
	assert.True(t, errors.Is(err, apperrors.ErrMissingColumns))
}

func TestGetSubset_MissingColumnDroppedWhenNotRaising(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ext := NewSubsetExtractor(zap.New(core))

	res, err := ext.GetSubset(siteSource(), []string{"site_id", "altitude"}, SubsetOptions{EntityName: "site"})
	require.NoError(t, err)

	assert.Equal(t, []string{"site_id"}, res.Table.Columns)
	assert.Equal(t, 4, res.Table.Len())
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, logs.Len())
}

func TestGetSubset_ExtraColumns(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id"}, SubsetOptions{
		EntityName: "site",
		ExtraColumns: models.ExtraColumns{
			{Name: "label", Value: "site_name"},
			{Name: "source_system", Value: "legacy"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"site_id", "label", "source_system"}, res.Table.Columns)
	assert.Equal(t, []any{1, "Alpha", "legacy"}, res.Table.Rows[0])
	assert.Equal(t, []any{2, "Beta", "legacy"}, res.Table.Rows[1])
}

func TestGetSubset_DropDuplicatesFullRow(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id", "site_name"}, SubsetOptions{
		EntityName:     "site",
		DropDuplicates: models.ColumnSelector{Enabled: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Table.Len())
}

func TestGetSubset_DropDuplicatesOnSubset(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id", "notes"}, SubsetOptions{
		EntityName:     "site",
		DropDuplicates: models.ColumnSelector{Enabled: true, Columns: []string{"site_id"}},
	})
	require.NoError(t, err)

	require.Equal(t, 3, res.Table.Len())
	// first occurrence kept
	assert.Equal(t, []any{1, "x"}, res.Table.Rows[0])
}

func TestGetSubset_FunctionalDependencyViolation(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())
	opts := SubsetOptions{
		EntityName:                 "site",
		DropDuplicates:             models.ColumnSelector{Enabled: true, Columns: []string{"site_id"}},
		CheckFunctionalDependency:  true,
		StrictFunctionalDependency: true,
	}

	_, err := ext.GetSubset(siteSource(), []string{"site_id", "notes"}, opts)
	require.Error(t, err)

	var fdErr *apperrors.FunctionalDependencyError
	require.True(t, errors.As(err, &fdErr))
	assert.Equal(t, []string{"(1)"}, fdErr.OffendingKeys)

	opts.StrictFunctionalDependency = false
	res, err := ext.GetSubset(siteSource(), []string{"site_id", "notes"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())
	assert.Len(t, res.Warnings, 1)
}

func TestGetSubset_FunctionalDependencyHolds(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id", "site_name", "lat"}, SubsetOptions{
		EntityName:                 "site",
		DropDuplicates:             models.ColumnSelector{Enabled: true, Columns: []string{"site_id"}},
		CheckFunctionalDependency:  true,
		StrictFunctionalDependency: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())
}

func TestGetSubset_DropEmptyRows(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_name", "lat", "lon"}, SubsetOptions{
		EntityName:    "site",
		DropEmptyRows: models.ColumnSelector{Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())

	res, err = ext.GetSubset(siteSource(), []string{"site_id", "notes"}, SubsetOptions{
		EntityName:    "site",
		DropEmptyRows: models.ColumnSelector{Enabled: true, Columns: []string{"notes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
}

func TestGetSubset_DropEmptyRowsMissingSubsetSkips(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id"}, SubsetOptions{
		EntityName:    "site",
		DropEmptyRows: models.ColumnSelector{Enabled: true, Columns: []string{"nope"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Table.Len())
	assert.Len(t, res.Warnings, 1)
}

func TestGetSubset_SurrogateID(t *testing.T) {
	ext := NewSubsetExtractor(zap.NewNop())

	res, err := ext.GetSubset(siteSource(), []string{"site_id", "site_name"}, SubsetOptions{
		EntityName:     "site",
		DropDuplicates: models.ColumnSelector{Enabled: true},
		SurrogateID:    "site_pk",
	})
	require.NoError(t, err)

	ids, err := res.Table.Column("site_pk")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ids)
	assert.Equal(t, "site_pk", res.Table.Columns[len(res.Table.Columns)-1])

	// an existing column of that name is kept as is
	res, err = ext.GetSubset(siteSource(), []string{"site_id"}, SubsetOptions{EntityName: "site", SurrogateID: "site_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"site_id"}, res.Table.Columns)
}

func TestSubsetOptionsFromSpec_Defaults(t *testing.T) {
	opts := SubsetOptionsFromSpec(&models.EntitySpec{Name: "site", SurrogateID: "site_pk"})

	assert.True(t, opts.RaiseIfMissing)
	assert.True(t, opts.StrictFunctionalDependency)
	assert.Equal(t, "site_pk", opts.SurrogateID)
}
