package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bleedingdev/usagedeck/internal/usage"
)

func TestAppendManifestEntry(t *testing.T) {
	snap := &usage.Snapshot{
		GeneratedAt:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		TotalCredentials: 4,
		Totals:           usage.Totals{TotalUsed: 123},
	}

	manifest, err := AppendManifestEntry([]byte(`{"archives":[]}`), "snapshots/a.json.gz", snap)
	require.NoError(t, err)

	entries := gjson.GetBytes(manifest, "archives")
	require.True(t, entries.IsArray())
	assert.Len(t, entries.Array(), 1)
	assert.Equal(t, "snapshots/a.json.gz", gjson.GetBytes(manifest, "archives.0.object").String())
	assert.Equal(t, int64(4), gjson.GetBytes(manifest, "archives.0.credentials").Int())
	assert.Equal(t, "2026-08-30T12:00:00Z", gjson.GetBytes(manifest, "archives.0.generated_at").String())
}

func TestAppendManifestEntryGrows(t *testing.T) {
	snap := &usage.Snapshot{GeneratedAt: time.Now()}

	manifest := []byte(`{"archives":[]}`)
	var err error
	for i := 0; i < 3; i++ {
		manifest, err = AppendManifestEntry(manifest, "snapshots/x.json.gz", snap)
		require.NoError(t, err)
	}

	assert.Len(t, gjson.GetBytes(manifest, "archives").Array(), 3)
}
