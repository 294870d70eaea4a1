package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url  string
		want ArchiveFormat
	}{
		{"https://example.org/data.tgz", FormatTarGzip},
		{"https://example.org/data.tar.bz2", FormatTarBzip2},
		{"https://example.org/data.zip", FormatZip},
		{"https://example.org/data.csv", FormatUnknown},
		{"https://example.org/data.tar.gz", FormatUnknown},
		{"https://example.org/data.zip?token=abc", FormatZip},
		{"data.tgz", FormatTarGzip},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.url))
		})
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "simplified-land-polygons-complete-3857", Stem("https://osmdata.example/simplified-land-polygons-complete-3857.zip"))
	assert.Equal(t, "world_boundaries", Stem("http://tile.example/world_boundaries.tar.bz2"))
	assert.Equal(t, "coastline", Stem("coastline.tgz"))
	assert.Equal(t, "points", Stem("points.csv"))
}

func TestIDStringRoundTrip(t *testing.T) {
	id := ID{Kind: KindRemoteFile, Name: "/srv/data/land.zip"}
	assert.Equal(t, "remote_file[/srv/data/land.zip]", id.String())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "directory", "directory[]", "[x]", "bogus[x]", "link[x"} {
		_, err := ParseID(s)
		assert.Error(t, err, "ParseID(%q) should fail", s)
	}
}

func TestDescriptorKinds(t *testing.T) {
	descs := map[Kind]Descriptor{
		KindDirectory:  DirectoryState{},
		KindLink:       LinkState{},
		KindFile:       FileState{},
		KindRemoteFile: RemoteFileState{},
		KindExtract:    ExtractState{},
		KindShapeIndex: IndexState{},
		KindDirWatch:   WatchState{},
		KindService:    ServiceState{},
	}
	require.Len(t, descs, len(Kinds))
	for kind, d := range descs {
		assert.Equal(t, kind, d.Kind())
		assert.True(t, kind.Valid())
	}
	assert.False(t, Kind("package").Valid())
}

func TestEdgeKeyIgnoresSourceAndTiming(t *testing.T) {
	target := ID{Kind: KindService, Name: "renderd.service"}
	a := Edge{Source: ID{Kind: KindRemoteFile, Name: "a"}, Target: target, Action: ActionRestart, Timing: Delayed}
	b := Edge{Source: ID{Kind: KindRemoteFile, Name: "b"}, Target: target, Action: ActionRestart, Timing: Immediate}
	c := Edge{Source: ID{Kind: KindRemoteFile, Name: "a"}, Target: target, Action: ActionReload, Timing: Delayed}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestOnlyWhenNotified(t *testing.T) {
	r := &Resource{Action: ActionNothing}
	assert.True(t, r.OnlyWhenNotified())
	r.Action = ActionRun
	assert.False(t, r.OnlyWhenNotified())
}
