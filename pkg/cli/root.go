// Package cli holds the command tree of the modpackinstaller binary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-modpackinstaller/pkg/cache"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/installer"
	"github.com/go-modpackinstaller/pkg/manager"
	"github.com/go-modpackinstaller/pkg/utils"
)

// options are the raw values of the persistent flags. They only override the
// configuration when explicitly set.
type options struct {
	configFile       string
	profileDomain    string
	gameDir          string
	profilesDir      string
	debug            bool
	verbose          bool
	logFile          string
	maxRetries       int
	retryDelay       int
	concurrency      int
	requestTimeout   time.Duration
	keepPartialFiles bool
	followRedirects  bool
	headers          string
	extraHeaders     headerValue
	userAgent        string
	cacheURL         string
	curseForgeKey    string
	dryRun           bool
	installLoaders   bool
	javaPath         string
}

// env is what every command runs with once flags are resolved
type env struct {
	opts   options
	cfg    *config.Config
	logger *utils.Logger
	cache  *cache.Cache
	out    io.Writer
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{})
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "modpackinstaller",
		Short:         "Search, download and install game modpacks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.teardown()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&e.opts.configFile, "config", "", "Configuration file (.yaml, .json or .plist)")
	f.StringVar(&e.opts.profileDomain, "profile-domain", config.DefaultProfileDomain, "Preference domain to read managed settings from")
	f.StringVar(&e.opts.gameDir, "game-dir", "", "Game directory loaders are installed into")
	f.StringVar(&e.opts.profilesDir, "profiles-dir", "", "Directory holding one directory per installed modpack")
	f.BoolVar(&e.opts.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&e.opts.verbose, "verbose", false, "Enable verbose logging")
	f.StringVar(&e.opts.logFile, "log-file", "", "Also write logs to this file")
	f.IntVar(&e.opts.maxRetries, "max-retries", 3, "Retries per failed transfer")
	f.IntVar(&e.opts.retryDelay, "retry-delay", 2, "Initial delay between retries in seconds")
	f.IntVar(&e.opts.concurrency, "download-max-concurrency", 8, "Maximum concurrent transfers")
	f.DurationVar(&e.opts.requestTimeout, "request-timeout", 2*time.Minute, "Timeout of a single HTTP request")
	f.BoolVar(&e.opts.keepPartialFiles, "keep-partial-files", false, "Keep partial downloads of a failed batch")
	f.BoolVar(&e.opts.followRedirects, "follow-redirects", true, "Follow HTTP redirects")
	f.StringVar(&e.opts.headers, "headers", "", "Authorization header value sent with every download")
	f.Var(&e.opts.extraHeaders, "header", "Extra HTTP header as Name=Value (repeatable)")
	f.StringVar(&e.opts.userAgent, "user-agent", "", "User-Agent of every request")
	f.StringVar(&e.opts.cacheURL, "cache-url", "", "Artifact cache bucket URL (file:///path or mem://)")
	f.StringVar(&e.opts.curseForgeKey, "curseforge-api-key", "", "CurseForge API key")
	f.BoolVar(&e.opts.dryRun, "dry-run", false, "Log loader installer commands instead of running them")
	f.BoolVar(&e.opts.installLoaders, "install-loaders", false, "Install required loaders right after a modpack")
	f.StringVar(&e.opts.javaPath, "java", "", "Java executable used by the Forge installer")

	root.AddCommand(
		newSearchCommand(e),
		newDetailsCommand(e),
		newInstallCommand(e),
		newDownloadVersionCommand(e),
		newManifestCommand(e),
		newLoaderCommand(e),
	)
	return root
}

// setup resolves the configuration. Precedence: explicitly set flags, then
// the --config file, then managed preferences, then defaults.
func (e *env) setup(cmd *cobra.Command) error {
	e.out = cmd.OutOrStdout()
	cfg := config.NewConfig()

	profileResult, err := cfg.ReadFromProfile(e.opts.profileDomain)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: preference reading failed (continuing with defaults): %v\n", err)
		profileResult = &config.ProfileResult{ConfigFound: false, Source: "none"}
	}
	if e.opts.configFile != "" {
		if err := cfg.LoadFile(e.opts.configFile); err != nil {
			return err
		}
	}

	flagsSet := make(map[string]bool)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flagsSet[f.Name] = true
	})
	e.applyFlags(cfg, flagsSet)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e.cfg = cfg

	if cfg.LogFilePath != "" {
		if !cfg.RetainLogFiles {
			if err := os.Remove(cfg.LogFilePath); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Failed to delete log file: %v\n", err)
			}
		}
		e.logger, err = utils.NewLoggerWithFile(cfg.Debug, cfg.Verbose, cfg.LogFilePath)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Failed to create file logger: %v\nUsing console-only logging\n", err)
			e.logger = utils.NewLogger(cfg.Debug, cfg.Verbose)
		}
	} else {
		e.logger = utils.NewLogger(cfg.Debug, cfg.Verbose)
	}

	if profileResult.ConfigFound {
		e.logger.Debug("Managed preferences applied from %s", profileResult.Source)
	}
	if len(flagsSet) > 0 {
		var names []string
		for name := range flagsSet {
			names = append(names, name)
		}
		e.logger.Debug("Command line overrides: %v", names)
	}
	if cfg.Debug {
		if b, err := json.MarshalIndent(cfg.RedactedForLogging(), "", "  "); err == nil {
			e.logger.Debug("Final configuration:\n%s", string(b))
		}
	}

	if cfg.CacheURL != "" {
		e.cache, err = cache.Open(cmd.Context(), cfg.CacheURL, e.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *env) applyFlags(cfg *config.Config, flagsSet map[string]bool) {
	o := e.opts
	if flagsSet["game-dir"] {
		cfg.GameDirectory = o.gameDir
	}
	if flagsSet["profiles-dir"] {
		cfg.ProfilesDirectory = o.profilesDir
	}
	if flagsSet["debug"] {
		cfg.Debug = o.debug
	}
	if flagsSet["verbose"] {
		cfg.Verbose = o.verbose
	}
	if flagsSet["log-file"] {
		cfg.LogFilePath = o.logFile
	}
	if flagsSet["max-retries"] {
		cfg.MaxRetries = o.maxRetries
	}
	if flagsSet["retry-delay"] {
		cfg.RetryDelay = o.retryDelay
	}
	if flagsSet["download-max-concurrency"] {
		cfg.DownloadMaxConcurrency = o.concurrency
	}
	if flagsSet["request-timeout"] {
		cfg.RequestTimeout = o.requestTimeout
	}
	if flagsSet["keep-partial-files"] {
		cfg.KeepPartialFiles = o.keepPartialFiles
	}
	if flagsSet["follow-redirects"] {
		cfg.FollowRedirects = o.followRedirects
	}
	if flagsSet["headers"] {
		if cfg.HTTPHeaders == nil {
			cfg.HTTPHeaders = map[string]string{}
		}
		if o.headers != "" {
			cfg.HTTPHeaders["Authorization"] = o.headers
		}
	}
	if flagsSet["header"] {
		if cfg.HTTPHeaders == nil {
			cfg.HTTPHeaders = map[string]string{}
		}
		for k, v := range o.extraHeaders.headers {
			cfg.HTTPHeaders[k] = v
		}
	}
	if flagsSet["user-agent"] {
		cfg.UserAgent = o.userAgent
	}
	if flagsSet["cache-url"] {
		cfg.CacheURL = o.cacheURL
	}
	if flagsSet["curseforge-api-key"] {
		cfg.CurseForgeAPIKey = o.curseForgeKey
	}
	if flagsSet["dry-run"] {
		cfg.DryRun = o.dryRun
	}
	if flagsSet["install-loaders"] {
		cfg.InstallLoaders = o.installLoaders
	}
	if flagsSet["java"] {
		cfg.JavaPath = o.javaPath
	}
}

func (e *env) teardown() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.logger.Warn("Failed to close cache: %v", err)
		}
	}
}

// client returns the transfer client configured for downloads
func (e *env) client() *download.Client {
	c := download.NewClient(e.logger, e.cfg.HTTPHeaders)
	c.SetUserAgent(e.cfg.UserAgent)
	c.SetTimeout(e.cfg.RequestTimeout)
	c.SetFollowRedirects(e.cfg.FollowRedirects)
	return c
}

// manager wires the transfer client, installers, cache and progress output
func (e *env) manager(cmd *cobra.Command) *manager.Manager {
	m := manager.NewManager(e.client(), installer.Installers(e.cfg, e.logger), e.cfg, e.logger)
	if e.cache != nil {
		m.SetCache(e.cache)
	}
	m.SetObserver(newProgressPrinter(cmd.ErrOrStderr()).observe)
	return m
}

// providerFlag registers --provider on cmd
func providerFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "provider", "p", "modrinth", "Marketplace: modrinth or curseforge")
}

func contentTypeFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "type", "t", "modpack", "Content type: modpack or mod")
}

func normalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
