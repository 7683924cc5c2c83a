package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidConfig(t *testing.T, input string) *Config {
	t.Helper()
	c, _, err := ParseBytes([]byte(input))
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestEmptyDocument(t *testing.T) {
	cases := []string{"", "\n", "---", "---\n"}
	for _, input := range cases {
		_, _, err := ParseBytes([]byte(input))
		require.Error(t, err)
	}
}

func TestFullTaskDefaults(t *testing.T) {
	c := testValidConfig(t, `
daemon:
  database: /var/lib/gazpacho/state.db
destination:
  backup1:
    local:
      folder: /tmp/bk
task:
  t:
    destination: backup1
    strategy:
      full:
        zpool: z
        filter: "^z/.*$"
`)

	require.Contains(t, c.Tasks, "t")
	task := c.Tasks["t"]
	assert.Equal(t, 1, task.Parallelism)
	assert.Equal(t, 1, c.Parallelism)

	dest := c.Destinations["backup1"]
	assert.Equal(t, 1, dest.Parallelism)
	assert.EqualValues(t, 0o600, dest.ChmodFile)
	assert.EqualValues(t, 0o700, dest.ChmodDir)

	strat, err := task.Strategy.Strategy("t")
	require.NoError(t, err)
	zpool, filter, err := strat.ZpoolAndFilter()
	require.NoError(t, err)
	assert.Equal(t, "z", zpool)
	assert.True(t, filter.MatchString("z/home"))
}

func TestIncrementalStrategyDefaults(t *testing.T) {
	c := testValidConfig(t, `
daemon:
  database: /var/lib/gazpacho/state.db
destination:
  backup1:
    local:
      folder: /tmp/bk
task:
  t:
    destination: backup1
    compression:
      zstd: {}
    strategy:
      incremental:
        zpool: z
        filter: "^z/db$"
        duration_before_reset: 168h
`)

	task := c.Tasks["t"]
	require.NotNil(t, task.Compression)
	require.NotNil(t, task.Compression.Zstd)
	assert.Equal(t, 3, task.Compression.Zstd.Level)
	assert.Equal(t, 1, task.Compression.Zstd.Workers)

	strat, err := task.Strategy.Strategy("t")
	require.NoError(t, err)
	inc, ok := strat.(*IncrementalStrategy)
	require.True(t, ok)
	require.NotNil(t, inc.DurationBeforeReset)
	assert.Equal(t, "168h0m0s", inc.DurationBeforeReset.String())
}

func TestDestinationKind_Ambiguous(t *testing.T) {
	d := &Destination{
		Name:  "x",
		SSH:   &DestinationSSH{Username: "u", IdentityFile: "/id", Folder: "/f", HostPort: "h:22"},
		Local: &DestinationLocal{Folder: "/tmp"},
	}
	_, err := d.Kind()
	require.Error(t, err)
}

func TestDestinationKind_Missing(t *testing.T) {
	d := &Destination{Name: "x"}
	_, err := d.Kind()
	require.Error(t, err)
}

func TestStrategy_AmbiguousAndMissing(t *testing.T) {
	both := StrategyConfig{
		Full:        &FullStrategy{Zpool: "z", Filter: ".*"},
		Incremental: &IncrementalStrategy{Zpool: "z", Filter: ".*"},
	}
	_, err := both.Strategy("t")
	require.Error(t, err)

	neither := StrategyConfig{}
	_, err = neither.Strategy("t")
	require.Error(t, err)
}

func TestTaskDroppedWhenDestinationMissing(t *testing.T) {
	c, dropped, err := ParseBytes([]byte(`
daemon:
  database: /var/lib/gazpacho/state.db
destination:
  backup1:
    local:
      folder: /tmp/bk
task:
  orphan:
    destination: does-not-exist
    strategy:
      full:
        zpool: z
        filter: ".*"
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, dropped)
	assert.NotContains(t, c.Tasks, "orphan")
}

func TestInvalidRegexFilterFailsAtResolution(t *testing.T) {
	c := testValidConfig(t, `
daemon:
  database: /var/lib/gazpacho/state.db
destination:
  backup1:
    local:
      folder: /tmp/bk
task:
  t:
    destination: backup1
    strategy:
      full:
        zpool: z
        filter: "("
`)
	strat, err := c.Tasks["t"].Strategy.Strategy("t")
	require.NoError(t, err)
	_, _, err = strat.ZpoolAndFilter()
	require.Error(t, err)
}
