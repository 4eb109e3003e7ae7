package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/model"
)

func TestBuild_EmbeddedCatalog(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)

	reg, err := Build(cat, Deps{Fetcher: &stubFetcher{}, Extractor: &mockExtractor{}, UserAgent: "cad-ingest/1.0"})
	require.NoError(t, err)
	assert.Equal(t, model.AllSources(), reg.Names())

	a, err := reg.Get(model.SourceHenrico)
	require.NoError(t, err)
	assert.Equal(t, KindFeatureServer, a.Kind())

	hanover, err := reg.Get(model.SourceHanover)
	require.NoError(t, err)
	_, guarded := hanover.(*ExtractAdapter).fetcher.(*fetcher.RobotsGuard)
	assert.True(t, guarded, "respect_robots wraps the fetcher")

	cfg, ok := reg.Config(model.SourceRichmond)
	require.True(t, ok)
	assert.Equal(t, 7, cfg.MinColumns)
}

func TestBuild_SkipsDisabled(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	off := false
	cat.Sources[1].Enabled = &off

	reg, err := Build(cat, Deps{Fetcher: &stubFetcher{}})
	require.NoError(t, err)
	assert.NotContains(t, reg.Names(), model.SourceRichmond)
	_, err = reg.Get(model.SourceRichmond)
	assert.Error(t, err)
}

func TestNewFromConfig_RequiresFetcher(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	_, err = NewFromConfig(cat.Sources[0], Deps{})
	assert.ErrorContains(t, err, "fetcher is required")
}

func TestRegistry_Select(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	reg, err := Build(cat, Deps{Fetcher: &stubFetcher{}})
	require.NoError(t, err)

	all, err := reg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := reg.Select([]string{"henrico", "Chesterfield"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, model.SourceHenrico, some[0].Name())
	assert.Equal(t, model.SourceChesterfield, some[1].Name())

	_, err = reg.Select([]string{"fairfax"})
	assert.ErrorContains(t, err, "unknown source")
}
