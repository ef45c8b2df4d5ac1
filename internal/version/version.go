// Package version holds chatdeck's build information.
package version

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Build information set at compile time via -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const productName = "chatdeck"

// Info is the parsed build information.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetInfo parses Version and collects the rest of the build information.
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetFormattedVersion returns the one-line version shown by `chatdeck version` and the shell banner.
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (invalid version)", productName, Version)
	}

	parts := []string{fmt.Sprintf("%s v%s", productName, info.Version)}
	if commit := shortCommit(info.GitCommit); commit != "" {
		parts = append(parts, "commit "+commit)
	}
	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, "built "+info.BuildDate)
	}
	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns multi-line build information.
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (error: %v)", productName, Version, err)
	}

	buildDate := info.BuildDate
	if t, err := GetBuildTime(); err == nil {
		buildDate = t.UTC().Format(time.RFC3339)
	}
	lines := []string{
		fmt.Sprintf("%s v%s", productName, info.Version),
		"Git Commit: " + info.GitCommit,
		"Build Date: " + buildDate,
	}
	if IsDevelopment() {
		lines = append(lines, "Build Type: development")
	}
	if pre := info.SemVer.Prerelease(); pre != "" {
		lines = append(lines, "Prerelease: "+pre)
	}
	if meta := info.SemVer.Metadata(); meta != "" {
		lines = append(lines, "Build Metadata: "+meta)
	}
	lines = append(lines,
		"Go Version: "+info.GoVersion,
		"Platform: "+info.Platform)
	return strings.Join(lines, "\n")
}

func shortCommit(commit string) string {
	if commit == "unknown" || commit == "" {
		return ""
	}
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// ValidateVersion checks that Version is a semantic version.
func ValidateVersion() error {
	if _, err := semver.NewVersion(Version); err != nil {
		return fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return nil
}

// IsDevelopment reports a build without injected commit or date.
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

// SetBuildInfo sets build information (used for testing)
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}

// GetBuildTime parses BuildDate.
func GetBuildTime() (time.Time, error) {
	if BuildDate == "unknown" || BuildDate == "" {
		return time.Time{}, fmt.Errorf("build date not available")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, BuildDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse build date '%s'", BuildDate)
}
