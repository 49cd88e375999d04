package buildinfo_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/buildinfo"
)

func TestDefaultValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dev", buildinfo.Version)
	assert.Equal(t, "unknown", buildinfo.Commit)
	assert.Equal(t, "unknown", buildinfo.Date)
}

func TestGetInfo_ReturnsPopulatedStruct(t *testing.T) {
	t.Parallel()

	info := buildinfo.GetInfo()

	assert.Equal(t, buildinfo.Version, info.Version)
	assert.Equal(t, buildinfo.Commit, info.Commit)
	assert.Equal(t, buildinfo.Date, info.Date)
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info buildinfo.Info
		want string
	}{
		{
			name: "default values",
			info: buildinfo.Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			want: "ferretbot vdev (commit: unknown, built: unknown)",
		},
		{
			name: "release values",
			info: buildinfo.Info{Version: "1.2.0", Commit: "a1b2c3d", Date: "2026-08-25T10:00:00Z"},
			want: "ferretbot v1.2.0 (commit: a1b2c3d, built: 2026-08-25T10:00:00Z)",
		},
		{
			name: "pre-release suffix",
			info: buildinfo.Info{Version: "1.0.0-rc.1", Commit: "deadbeef", Date: "2026-06-01T00:00:00Z"},
			want: "ferretbot v1.0.0-rc.1 (commit: deadbeef, built: 2026-06-01T00:00:00Z)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestInfoJSON_FieldNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(buildinfo.Info{Version: "1.0.0", Commit: "abc", Date: "today"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0","commit":"abc","date":"today"}`, string(data))
}
