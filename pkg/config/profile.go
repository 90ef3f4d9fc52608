package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"howett.net/plist"
)

const DefaultProfileDomain = "com.github.go-modpackinstaller"

// ProfileResult contains what we read from the preference domain
type ProfileResult struct {
	ConfigFound bool
	Source      string // path of the plist that was applied, or "none"
}

// ReadFromProfile applies settings from a plist preference domain. Managed
// preferences win over user preferences; only one of them is applied.
func (c *Config) ReadFromProfile(domain string) (*ProfileResult, error) {
	if domain == "" {
		domain = DefaultProfileDomain
	}

	for _, path := range profilePaths(domain) {
		prefs := readPlistFile(path)
		if prefs == nil {
			continue
		}
		if err := c.applySettingsMap(prefs); err != nil {
			return nil, fmt.Errorf("failed to apply settings from %s: %w", path, err)
		}
		return &ProfileResult{ConfigFound: true, Source: path}, nil
	}

	return &ProfileResult{ConfigFound: false, Source: "none"}, nil
}

// profilePaths lists plist locations for domain in precedence order
func profilePaths(domain string) []string {
	paths := []string{fmt.Sprintf("/Library/Managed Preferences/%s.plist", domain)}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, "Library", "Preferences", domain+".plist"))
	}
	return paths
}

// readPlistFile reads a plist file and returns its contents
func readPlistFile(path string) map[string]interface{} {
	file, err := os.Open(path)
	if err != nil {
		return nil // File doesn't exist or can't be read
	}
	defer file.Close()

	var prefs map[string]interface{}
	decoder := plist.NewDecoder(file)
	if err := decoder.Decode(&prefs); err != nil {
		return nil // Can't parse plist
	}

	return prefs
}

// applySettingsMap applies a settings map to the config
func (c *Config) applySettingsMap(settings map[string]interface{}) error {
	for key, dst := range map[string]*string{
		"GameDirectory":     &c.GameDirectory,
		"ProfilesDirectory": &c.ProfilesDirectory,
		"LogFilePath":       &c.LogFilePath,
		"CacheURL":          &c.CacheURL,
		"UserAgent":         &c.UserAgent,
		"ModrinthBaseURL":   &c.ModrinthBaseURL,
		"CurseForgeBaseURL": &c.CurseForgeBaseURL,
		"CurseForgeAPIKey":  &c.CurseForgeAPIKey,
		"FabricMetaURL":     &c.FabricMetaURL,
		"ForgeMavenURL":     &c.ForgeMavenURL,
		"JavaPath":          &c.JavaPath,
	} {
		if val, exists := settings[key]; exists {
			str, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s must be a string, got %T", key, val)
			}
			if str != "" {
				*dst = str
			}
		}
	}

	for key, dst := range map[string]*bool{
		"Debug":            &c.Debug,
		"Verbose":          &c.Verbose,
		"RetainLogFiles":   &c.RetainLogFiles,
		"KeepPartialFiles": &c.KeepPartialFiles,
		"FollowRedirects":  &c.FollowRedirects,
		"DryRun":           &c.DryRun,
		"InstallLoaders":   &c.InstallLoaders,
	} {
		if val, exists := settings[key]; exists {
			switch v := val.(type) {
			case bool:
				*dst = v
			case string:
				if parsed, err := strconv.ParseBool(v); err == nil {
					*dst = parsed
				}
			}
		}
	}

	for key, dst := range map[string]*int{
		"MaxRetries":             &c.MaxRetries,
		"RetryDelay":             &c.RetryDelay,
		"DownloadMaxConcurrency": &c.DownloadMaxConcurrency,
		"SearchPageSize":         &c.SearchPageSize,
		"APIMaxRetries":          &c.APIMaxRetries,
	} {
		if val, exists := settings[key]; exists {
			if i, ok := toInt(val); ok {
				*dst = i
			}
		}
	}

	if val, exists := settings["APIRequestsPerSecond"]; exists {
		switch v := val.(type) {
		case float64:
			c.APIRequestsPerSecond = v
		default:
			if i, ok := toInt(v); ok {
				c.APIRequestsPerSecond = float64(i)
			}
		}
	}

	// Accept seconds as int or a duration string
	if val, exists := settings["RequestTimeout"]; exists {
		if i, ok := toInt(val); ok {
			c.RequestTimeout = time.Duration(i) * time.Second
		} else if str, ok := val.(string); ok {
			if d, err := time.ParseDuration(str); err == nil {
				c.RequestTimeout = d
			}
		}
	}

	// HTTP Headers: dictionary format {"X-Key": "v"} or array format [{"name": "X-Key", "value": "v"}]
	if val, exists := settings["HTTPHeaders"]; exists {
		if c.HTTPHeaders == nil {
			c.HTTPHeaders = make(map[string]string)
		}
		if headersMap, ok := val.(map[string]interface{}); ok {
			for key, value := range headersMap {
				if strValue, ok := value.(string); ok {
					c.HTTPHeaders[key] = strValue
				}
			}
		} else if headersArray, ok := val.([]interface{}); ok {
			for _, item := range headersArray {
				if headerDict, ok := item.(map[string]interface{}); ok {
					name, nameOk := headerDict["name"].(string)
					value, valueOk := headerDict["value"].(string)
					if nameOk && valueOk {
						c.HTTPHeaders[name] = value
					}
				}
			}
		}
	}

	// Legacy single-header key
	if val, exists := settings["HeaderAuthorization"]; exists {
		if str, ok := val.(string); ok && str != "" {
			if c.HTTPHeaders == nil {
				c.HTTPHeaders = make(map[string]string)
			}
			c.HTTPHeaders["Authorization"] = str
		}
	}

	return nil
}

func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i, true
		}
	}
	return 0, false
}
