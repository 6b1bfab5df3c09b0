package ytdl

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ytdlpReleaseAPI = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	checksumAsset   = "SHA2-256SUMS"
	versionFile     = "yt-dlp.version"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// HTTPClient interface for mocking
type HTTPClient interface {
	Get(url string) (*http.Response, error)
}

// Manager handles yt-dlp installation and updates
type Manager struct {
	utilsDir       string
	currentVersion string
	lastCheckTime  time.Time
	httpClient     HTTPClient
	log            *zap.Logger
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// NewManager creates a new yt-dlp manager
func NewManager(utilsDir string) *Manager {
	return NewManagerWithClient(utilsDir, &http.Client{Timeout: 5 * time.Minute})
}

// NewManagerWithClient creates a manager with a custom HTTP client
func NewManagerWithClient(utilsDir string, client HTTPClient) *Manager {
	os.MkdirAll(utilsDir, 0755)

	m := &Manager{
		utilsDir:   utilsDir,
		httpClient: client,
		log:        zap.L().Named("ytdl"),
	}
	if data, err := os.ReadFile(filepath.Join(utilsDir, versionFile)); err == nil && m.IsInstalled() {
		m.currentVersion = strings.TrimSpace(string(data))
	}
	return m
}

// GetYtdlpPath returns the path to yt-dlp executable
func (m *Manager) GetYtdlpPath() string {
	return filepath.Join(m.utilsDir, detectPlatform())
}

// IsInstalled checks if yt-dlp is installed
func (m *Manager) IsInstalled() bool {
	_, err := os.Stat(m.GetYtdlpPath())
	return err == nil
}

// GetCurrentVersion returns the currently installed version
func (m *Manager) GetCurrentVersion() string {
	return m.currentVersion
}

// LastCheck returns when the release API was last queried
func (m *Manager) LastCheck() time.Time {
	return m.lastCheckTime
}

func (m *Manager) latestRelease() (*GitHubRelease, error) {
	resp, err := m.httpClient.Get(ytdlpReleaseAPI)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}

	return &release, nil
}

// CheckForUpdate checks if a newer version is available
func (m *Manager) CheckForUpdate() (string, bool, error) {
	release, err := m.latestRelease()
	if err != nil {
		return "", false, fmt.Errorf("failed to check for updates: %w", err)
	}

	m.lastCheckTime = time.Now()

	if !m.IsInstalled() {
		return release.TagName, true, nil
	}

	if m.currentVersion == "" || m.currentVersion != release.TagName {
		return release.TagName, true, nil
	}

	return release.TagName, false, nil
}

// Download downloads and installs yt-dlp
func (m *Manager) Download() error {
	release, err := m.latestRelease()
	if err != nil {
		return fmt.Errorf("failed to fetch release info: %w", err)
	}

	platform := detectPlatform()
	var downloadURL, sumsURL string
	for _, asset := range release.Assets {
		switch asset.Name {
		case platform:
			downloadURL = asset.BrowserDownloadURL
		case checksumAsset:
			sumsURL = asset.BrowserDownloadURL
		}
	}

	if downloadURL == "" {
		return fmt.Errorf("no asset found for platform: %s", platform)
	}

	// Releases without a checksum file are installed unverified
	var expected string
	if sumsURL != "" {
		if expected, err = m.expectedChecksum(sumsURL, platform); err != nil {
			return err
		}
	}

	m.log.Info("downloading yt-dlp", zap.String("version", release.TagName), zap.String("asset", platform))
	resp, err := m.httpClient.Get(downloadURL)
	if err != nil {
		return fmt.Errorf("failed to download yt-dlp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ytdlpPath := m.GetYtdlpPath()
	tmpPath := ytdlpPath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, hash), resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := verifyChecksum(hash.Sum(nil), expected); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to make executable: %w", err)
	}

	// Rename replaces any existing binary atomically
	if err := os.Rename(tmpPath, ytdlpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.utilsDir, versionFile), []byte(release.TagName+"\n"), 0644); err != nil {
		m.log.Warn("failed to record yt-dlp version", zap.Error(err))
	}
	m.currentVersion = release.TagName
	m.log.Info("yt-dlp installed", zap.String("version", release.TagName), zap.String("path", ytdlpPath))

	return nil
}

// expectedChecksum reads the hex digest for asset from a sha256sum-style listing
func (m *Manager) expectedChecksum(sumsURL, asset string) (string, error) {
	resp, err := m.httpClient.Get(sumsURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch checksums: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("checksum download failed with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && strings.TrimPrefix(fields[1], "*") == asset {
			return strings.ToLower(fields[0]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read checksums: %w", err)
	}

	return "", fmt.Errorf("no checksum listed for %s", asset)
}

// verifyChecksum compares a digest against its expected hex form. An empty
// expectation passes.
func verifyChecksum(sum []byte, expected string) error {
	if expected == "" {
		return nil
	}
	actual := hex.EncodeToString(sum)
	if actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

// EnsureInstalled ensures yt-dlp is installed, downloading if necessary
func (m *Manager) EnsureInstalled() error {
	if m.IsInstalled() {
		return nil
	}

	m.log.Info("yt-dlp not found, downloading")
	return m.Download()
}

// AutoUpdate checks for and applies updates if available
func (m *Manager) AutoUpdate() error {
	latestVersion, hasUpdate, err := m.CheckForUpdate()
	if err != nil {
		return err
	}

	if !hasUpdate {
		m.log.Debug("yt-dlp is up to date", zap.String("version", latestVersion))
		return nil
	}

	m.log.Info("updating yt-dlp", zap.String("version", latestVersion))
	return m.Download()
}

// detectPlatform returns the appropriate yt-dlp binary name for the current platform
func detectPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "yt-dlp.exe"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "yt-dlp_linux_aarch64"
		}
		return "yt-dlp_linux"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}
