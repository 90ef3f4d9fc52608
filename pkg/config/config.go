package config

import (
	"fmt"
	"time"
)

// Config represents the main configuration for the installer
type Config struct {
	// GameDirectory is the launcher's game root (holds versions/, libraries/ and profiles)
	GameDirectory string `json:"game_directory" yaml:"game_directory"`
	// ProfilesDirectory holds one directory per installed modpack
	ProfilesDirectory string `json:"profiles_directory" yaml:"profiles_directory"`

	Debug          bool   `json:"debug" yaml:"debug"`
	Verbose        bool   `json:"verbose" yaml:"verbose"`
	LogFilePath    string `json:"log_file_path,omitempty" yaml:"log_file_path,omitempty"`
	RetainLogFiles bool   `json:"retain_log_files" yaml:"retain_log_files"`

	// Retry settings for file transfers
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	RetryDelay int `json:"retry_delay" yaml:"retry_delay"` // seconds

	// Download concurrency
	DownloadMaxConcurrency int           `json:"download_max_concurrency" yaml:"download_max_concurrency"`
	RequestTimeout         time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// KeepPartialFiles preserves .part files of a failed batch for troubleshooting
	KeepPartialFiles bool `json:"keep_partial_files" yaml:"keep_partial_files"`

	// CacheURL is an optional gocloud blob URL (file:///..., mem://) for the artifact cache
	CacheURL string `json:"cache_url,omitempty" yaml:"cache_url,omitempty"`

	// HTTP settings
	UserAgent       string            `json:"user_agent" yaml:"user_agent"`
	HTTPHeaders     map[string]string `json:"http_headers,omitempty" yaml:"http_headers,omitempty"`
	FollowRedirects bool              `json:"follow_redirects" yaml:"follow_redirects"`

	// Marketplace settings
	ModrinthBaseURL      string  `json:"modrinth_base_url" yaml:"modrinth_base_url"`
	CurseForgeBaseURL    string  `json:"curseforge_base_url" yaml:"curseforge_base_url"`
	CurseForgeAPIKey     string  `json:"curseforge_api_key,omitempty" yaml:"curseforge_api_key,omitempty"`
	SearchPageSize       int     `json:"search_page_size" yaml:"search_page_size"`
	APIRequestsPerSecond float64 `json:"api_requests_per_second" yaml:"api_requests_per_second"`
	APIMaxRetries        int     `json:"api_max_retries" yaml:"api_max_retries"`

	// Loader installation
	FabricMetaURL  string `json:"fabric_meta_url" yaml:"fabric_meta_url"`
	ForgeMavenURL  string `json:"forge_maven_url" yaml:"forge_maven_url"`
	JavaPath       string `json:"java_path" yaml:"java_path"`
	DryRun         bool   `json:"dry_run" yaml:"dry_run"` // Don't actually run loader installers
	InstallLoaders bool   `json:"install_loaders" yaml:"install_loaders"`
}

// NewConfig creates a new Config with defaults
func NewConfig() *Config {
	return &Config{
		GameDirectory:          "minecraft",
		ProfilesDirectory:      "minecraft/custom_gamedir",
		Debug:                  false,
		Verbose:                false,
		RetainLogFiles:         false,
		MaxRetries:             3,
		RetryDelay:             2,
		DownloadMaxConcurrency: 8,
		RequestTimeout:         time.Minute * 2,
		KeepPartialFiles:       false, // partial bytes of a failed batch are deleted
		UserAgent:              "go-modpackinstaller/1.0",
		HTTPHeaders:            map[string]string{},
		FollowRedirects:        true, // marketplace CDNs redirect to storage buckets
		ModrinthBaseURL:        "https://api.modrinth.com/v2",
		CurseForgeBaseURL:      "https://api.curseforge.com/v1",
		SearchPageSize:         20,
		APIRequestsPerSecond:   5,
		APIMaxRetries:          3,
		FabricMetaURL:          "https://meta.fabricmc.net/v2",
		ForgeMavenURL:          "https://maven.minecraftforge.net",
		JavaPath:               "java",
		DryRun:                 false,
		InstallLoaders:         false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GameDirectory == "" {
		return fmt.Errorf("GameDirectory is required")
	}
	if c.DownloadMaxConcurrency <= 0 {
		return fmt.Errorf("DownloadMaxConcurrency must be positive, got %d", c.DownloadMaxConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries cannot be negative, got %d", c.MaxRetries)
	}
	if c.SearchPageSize <= 0 || c.SearchPageSize > 100 {
		return fmt.Errorf("SearchPageSize must be between 1 and 100, got %d", c.SearchPageSize)
	}
	return nil
}

// RetryDelayDuration returns RetryDelay as a duration
func (c *Config) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// RedactedForLogging returns a redacted, human-friendly snapshot of the
// effective configuration suitable for debug logs. Sensitive values are masked
// and durations are rendered as strings.
func (c *Config) RedactedForLogging() map[string]interface{} {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***redacted***"
	}
	maskMap := func(in map[string]string) map[string]string {
		if in == nil {
			return nil
		}
		out := make(map[string]string, len(in))
		for k := range in {
			out[k] = "***redacted***"
		}
		return out
	}

	return map[string]interface{}{
		// Paths
		"GameDirectory":     c.GameDirectory,
		"ProfilesDirectory": c.ProfilesDirectory,
		"CacheURL":          c.CacheURL,
		// Logging
		"Debug":       c.Debug,
		"Verbose":     c.Verbose,
		"LogFilePath": c.LogFilePath,
		// Transfers
		"MaxRetries":             c.MaxRetries,
		"RetryDelay":             c.RetryDelay,
		"DownloadMaxConcurrency": c.DownloadMaxConcurrency,
		"RequestTimeout":         c.RequestTimeout.String(),
		"KeepPartialFiles":       c.KeepPartialFiles,
		// HTTP (redacted)
		"UserAgent":       c.UserAgent,
		"HTTPHeaders":     maskMap(c.HTTPHeaders),
		"FollowRedirects": c.FollowRedirects,
		// Marketplaces
		"ModrinthBaseURL":      c.ModrinthBaseURL,
		"CurseForgeBaseURL":    c.CurseForgeBaseURL,
		"CurseForgeAPIKey":     mask(c.CurseForgeAPIKey),
		"SearchPageSize":       c.SearchPageSize,
		"APIRequestsPerSecond": c.APIRequestsPerSecond,
		"APIMaxRetries":        c.APIMaxRetries,
		// Loaders
		"FabricMetaURL":  c.FabricMetaURL,
		"ForgeMavenURL":  c.ForgeMavenURL,
		"JavaPath":       c.JavaPath,
		"DryRun":         c.DryRun,
		"InstallLoaders": c.InstallLoaders,
	}
}
