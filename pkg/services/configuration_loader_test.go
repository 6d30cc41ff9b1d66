package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

const projectYAML = `
options:
  data_sources:
    sead:
      driver: postgres
      host: localhost
      password: ${SHAPESHIFT_TEST_PASSWORD}
entities:
  sample:
    type: sql
    data_source: sead
    query: SELECT sample_id, site_id FROM sample WHERE site_id > {{min_site}}
    params:
      min_site: 0
    columns: [sample_id, site_id]
    foreign_keys:
      - entity: site
        local_keys: [site_id]
        remote_keys: [site_id]
        constraints:
          cardinality: many_to_one
  site:
    type: fixed
    columns: [site_id, site_name]
    surrogate_id: system_id
    values:
      - [1, Abisko]
      - [2, Lund]
`

func TestConfigurationLoader_Parse(t *testing.T) {
	t.Setenv("SHAPESHIFT_TEST_PASSWORD", "s3cret")

	cfg, err := NewConfigurationLoader(zap.NewNop()).Parse([]byte(projectYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"sample", "site"}, cfg.Names())

	sample, ok := cfg.Get("sample")
	require.True(t, ok)
	assert.Equal(t, models.EntityTypeSQL, sample.Type)
	assert.Equal(t, "sead", sample.DataSource)
	assert.Equal(t, map[string]any{"min_site": 0}, sample.Params)
	require.Len(t, sample.ForeignKeys, 1)
	assert.Equal(t, models.CardinalityManyToOne, sample.ForeignKeys[0].ExpectedCardinality())

	site, ok := cfg.Get("site")
	require.True(t, ok)
	assert.Equal(t, [][]any{{1, "Abisko"}, {2, "Lund"}}, site.Values)
	assert.Equal(t, "system_id", site.SurrogateID)

	source := cfg.Options.DataSources["sead"]
	assert.Equal(t, "postgres", source.Driver)
	assert.Equal(t, "s3cret", source.Options["password"])
	assert.Equal(t, "localhost", source.Options["host"])
}

func TestConfigurationLoader_RejectsUnknownEntityField(t *testing.T) {
	doc := `
entities:
  site:
    type: fixed
    colums: [site_id]
`
	_, err := NewConfigurationLoader(zap.NewNop()).Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "colums"`)
}

func TestConfigurationLoader_DefaultsTypeToData(t *testing.T) {
	cfg, err := NewConfigurationLoader(zap.NewNop()).Parse([]byte("entities:\n  site:\n    source: raw_site\n"))
	require.NoError(t, err)

	site, _ := cfg.Get("site")
	assert.Equal(t, models.EntityTypeData, site.Type)
}

func TestConfigurationLoader_EmptyDocument(t *testing.T) {
	cfg, err := NewConfigurationLoader(zap.NewNop()).Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Entities)
}

func TestConfigurationLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yml")
	require.NoError(t, os.WriteFile(path, []byte(projectYAML), 0o600))

	cfg, err := NewConfigurationLoader(zap.NewNop()).LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Entities, 2)

	_, err = NewConfigurationLoader(zap.NewNop()).LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
