package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { SetBuildInfo(origVersion, origCommit, origDate) })
	SetBuildInfo(version, commit, date)
}

func TestDefaultVersionIsValid(t *testing.T) {
	assert.NoError(t, ValidateVersion())
}

func TestGetFormattedVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{"development build", "0.1.0", "unknown", "unknown", "chatdeck v0.1.0"},
		{"release build", "1.2.3", "abcdef1234567", "2025-06-15", "chatdeck v1.2.3, commit abcdef1, built 2025-06-15"},
		{"short commit", "1.2.3", "abc", "unknown", "chatdeck v1.2.3, commit abc"},
		{"invalid version", "not-a-version", "unknown", "unknown", "chatdeck vnot-a-version (invalid version)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, tt.version, tt.commit, tt.date)
			assert.Equal(t, tt.expected, GetFormattedVersion())
		})
	}
}

func TestGetDetailedVersion(t *testing.T) {
	withBuildInfo(t, "0.3.0-beta.1+42.abc", "abc1234", "2025-06-15T10:00:00Z")

	out := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(out, "chatdeck v0.3.0-beta.1+42.abc\n"))
	assert.Contains(t, out, "Prerelease: beta.1")
	assert.Contains(t, out, "Build Metadata: 42.abc")
	assert.Contains(t, out, "Git Commit: abc1234")
	assert.Contains(t, out, "Go Version: go")
	assert.Contains(t, out, "Build Date: 2025-06-15T10:00:00Z")
	assert.NotContains(t, out, "Build Type")
}

func TestGetDetailedVersion_DevelopmentBuild(t *testing.T) {
	withBuildInfo(t, "0.1.0", "unknown", "unknown")

	out := GetDetailedVersion()
	assert.Contains(t, out, "Build Date: unknown")
	assert.Contains(t, out, "Build Type: development")

	SetBuildInfo("0.1.0", "abc1234", "2025-06-15")
	out = GetDetailedVersion()
	assert.Contains(t, out, "Build Date: 2025-06-15T00:00:00Z")
	assert.NotContains(t, out, "Build Type")
}

func TestGetInfo_Invalid(t *testing.T) {
	withBuildInfo(t, "x.y", "unknown", "unknown")
	_, err := GetInfo()
	assert.Error(t, err)
	assert.Error(t, ValidateVersion())
}

func TestIsDevelopment(t *testing.T) {
	withBuildInfo(t, "0.1.0", "unknown", "unknown")
	assert.True(t, IsDevelopment())

	SetBuildInfo("0.1.0", "abc", "2025-06-15")
	assert.False(t, IsDevelopment())
}

func TestGetBuildTime(t *testing.T) {
	withBuildInfo(t, "0.1.0", "abc", "2025-06-15")
	bt, err := GetBuildTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), bt)

	SetBuildInfo("0.1.0", "abc", "yesterday")
	_, err = GetBuildTime()
	assert.Error(t, err)

	SetBuildInfo("0.1.0", "abc", "unknown")
	_, err = GetBuildTime()
	assert.Error(t, err)
}
