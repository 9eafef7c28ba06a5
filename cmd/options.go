// Package cmd defines the shared option surface for org-stats subcommands.
//
// Every flag resolves in the following precedence order: explicit flag value,
// matching environment variable, options-file entry, built-in default.
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Defaults for the harvest option surface.
const (
	DefaultBaseURL                = "https://api.github.com"
	DefaultPageSize               = 10
	DefaultExtraPageSize          = 50
	DefaultRateLimitCheckInterval = 60
	DefaultRetryMaxAttempts       = 3
	DefaultRetryInitialDelayMS    = 1000
	DefaultRetryMaxDelayMS        = 30000
	DefaultRetryBackoffFactor     = 2.0
	DefaultRetrySuccessThreshold  = 5
)

// Options holds the resolved configuration shared by the repo-stats and
// missing-repos subcommands.
type Options struct {
	OrgName           string
	AccessToken       string
	AppID             int64
	PrivateKey        string
	PrivateKeyFile    string
	AppInstallationID int64

	BaseURL  string
	ProxyURL string
	Verbose  bool

	PageSize      int
	ExtraPageSize int

	RateLimitCheckInterval int
	RetryMaxAttempts       int
	RetryInitialDelayMS    int
	RetryMaxDelayMS        int
	RetryBackoffFactor     float64
	RetrySuccessThreshold  int

	ResumeFromLastSave bool
	OutputFileName     string
}

// RetryInitialDelay returns the initial retry delay as a duration.
func (o *Options) RetryInitialDelay() time.Duration {
	return time.Duration(o.RetryInitialDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the retry delay cap as a duration.
func (o *Options) RetryMaxDelay() time.Duration {
	return time.Duration(o.RetryMaxDelayMS) * time.Millisecond
}

// FileOptions mirrors Options for the optional YAML options file. Pointer
// fields distinguish "absent" from zero values.
type FileOptions struct {
	OrgName           *string `yaml:"org_name,omitempty"`
	AccessToken       *string `yaml:"access_token,omitempty"`
	AppID             *int64  `yaml:"app_id,omitempty"`
	PrivateKey        *string `yaml:"private_key,omitempty"`
	PrivateKeyFile    *string `yaml:"private_key_file,omitempty"`
	AppInstallationID *int64  `yaml:"app_installation_id,omitempty"`

	BaseURL  *string `yaml:"base_url,omitempty"`
	ProxyURL *string `yaml:"proxy_url,omitempty"`
	Verbose  *bool   `yaml:"verbose,omitempty"`

	PageSize      *int `yaml:"page_size,omitempty"`
	ExtraPageSize *int `yaml:"extra_page_size,omitempty"`

	RateLimitCheckInterval *int     `yaml:"rate_limit_check_interval,omitempty"`
	RetryMaxAttempts       *int     `yaml:"retry_max_attempts,omitempty"`
	RetryInitialDelayMS    *int     `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelayMS        *int     `yaml:"retry_max_delay,omitempty"`
	RetryBackoffFactor     *float64 `yaml:"retry_backoff_factor,omitempty"`
	RetrySuccessThreshold  *int     `yaml:"retry_success_threshold,omitempty"`

	ResumeFromLastSave *bool   `yaml:"resume_from_last_save,omitempty"`
	OutputFileName     *string `yaml:"output_file_name,omitempty"`
}

// LoadOptionsFile reads an options file. An empty path yields an empty
// FileOptions so callers never branch on whether a file was given.
func LoadOptionsFile(path string) (*FileOptions, error) {
	if path == "" {
		return &FileOptions{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from a command-line flag
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}

	var file FileOptions
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %w", err)
	}

	return &file, nil
}

// Resolve overrides every option that was not set explicitly on the command
// line with its environment variable or options-file value, in that order.
func (o *Options) Resolve(flags *pflag.FlagSet, file *FileOptions) error {
	if file == nil {
		file = &FileOptions{}
	}

	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	resolveString(flags, "org-name", "ORG_NAME", file.OrgName, &o.OrgName)
	resolveString(flags, "access-token", "ACCESS_TOKEN", file.AccessToken, &o.AccessToken)
	record(resolveInt64(flags, "app-id", "APP_ID", file.AppID, &o.AppID))
	resolveString(flags, "private-key", "PRIVATE_KEY", file.PrivateKey, &o.PrivateKey)
	resolveString(flags, "private-key-file", "PRIVATE_KEY_FILE", file.PrivateKeyFile, &o.PrivateKeyFile)
	record(resolveInt64(flags, "app-installation-id", "APP_INSTALLATION_ID", file.AppInstallationID, &o.AppInstallationID))

	resolveString(flags, "base-url", "BASE_URL", file.BaseURL, &o.BaseURL)
	resolveString(flags, "proxy-url", "PROXY_URL", file.ProxyURL, &o.ProxyURL)
	record(resolveBool(flags, "verbose", "VERBOSE", file.Verbose, &o.Verbose))

	record(resolveInt(flags, "page-size", "PAGE_SIZE", file.PageSize, &o.PageSize))
	record(resolveInt(flags, "extra-page-size", "EXTRA_PAGE_SIZE", file.ExtraPageSize, &o.ExtraPageSize))

	record(resolveInt(flags, "rate-limit-check-interval", "RATE_LIMIT_CHECK_INTERVAL", file.RateLimitCheckInterval, &o.RateLimitCheckInterval))
	record(resolveInt(flags, "retry-max-attempts", "RETRY_MAX_ATTEMPTS", file.RetryMaxAttempts, &o.RetryMaxAttempts))
	record(resolveInt(flags, "retry-initial-delay", "RETRY_INITIAL_DELAY", file.RetryInitialDelayMS, &o.RetryInitialDelayMS))
	record(resolveInt(flags, "retry-max-delay", "RETRY_MAX_DELAY", file.RetryMaxDelayMS, &o.RetryMaxDelayMS))
	record(resolveFloat(flags, "retry-backoff-factor", "RETRY_BACKOFF_FACTOR", file.RetryBackoffFactor, &o.RetryBackoffFactor))
	record(resolveInt(flags, "retry-success-threshold", "RETRY_SUCCESS_THRESHOLD", file.RetrySuccessThreshold, &o.RetrySuccessThreshold))

	record(resolveBool(flags, "resume-from-last-save", "RESUME_FROM_LAST_SAVE", file.ResumeFromLastSave, &o.ResumeFromLastSave))
	resolveString(flags, "output-file-name", "OUTPUT_FILE_NAME", file.OutputFileName, &o.OutputFileName)

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateHarvest checks the options required by the repo-stats subcommand.
func (o *Options) ValidateHarvest() error {
	if o.OrgName == "" {
		return fmt.Errorf("organization name is required (use --org-name or ORG_NAME)")
	}
	return o.validateAuth()
}

// ValidateAudit checks the options required by the missing-repos subcommand.
func (o *Options) ValidateAudit() error {
	if o.OrgName == "" {
		return fmt.Errorf("organization name is required (use --org-name or ORG_NAME)")
	}
	if o.OutputFileName == "" {
		return fmt.Errorf("output file name is required (use --output-file-name or OUTPUT_FILE_NAME)")
	}
	return o.validateAuth()
}

// validateAuth requires either a personal access token or the complete GitHub
// App triple (app id, private key or key file, installation id).
func (o *Options) validateAuth() error {
	if o.AccessToken != "" {
		return nil
	}
	if o.AppID != 0 && (o.PrivateKey != "" || o.PrivateKeyFile != "") && o.AppInstallationID != 0 {
		return nil
	}
	return fmt.Errorf("authentication is required: provide --access-token, or --app-id with --private-key/--private-key-file and --app-installation-id")
}

// UsesAppAuth reports whether GitHub App credentials were supplied instead of
// a personal access token.
func (o *Options) UsesAppAuth() bool {
	return o.AccessToken == "" && o.AppID != 0
}

func resolveString(flags *pflag.FlagSet, name, envKey string, file *string, target *string) {
	if flags.Changed(name) {
		return
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		*target = v
		return
	}
	if file != nil {
		*target = *file
	}
}

func resolveInt(flags *pflag.FlagSet, name, envKey string, file *int, target *int) error {
	if flags.Changed(name) {
		return nil
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", envKey, err)
		}
		*target = parsed
		return nil
	}
	if file != nil {
		*target = *file
	}
	return nil
}

func resolveInt64(flags *pflag.FlagSet, name, envKey string, file *int64, target *int64) error {
	if flags.Changed(name) {
		return nil
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", envKey, err)
		}
		*target = parsed
		return nil
	}
	if file != nil {
		*target = *file
	}
	return nil
}

func resolveBool(flags *pflag.FlagSet, name, envKey string, file *bool, target *bool) error {
	if flags.Changed(name) {
		return nil
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", envKey, err)
		}
		*target = parsed
		return nil
	}
	if file != nil {
		*target = *file
	}
	return nil
}

func resolveFloat(flags *pflag.FlagSet, name, envKey string, file *float64, target *float64) error {
	if flags.Changed(name) {
		return nil
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", envKey, err)
		}
		*target = parsed
		return nil
	}
	if file != nil {
		*target = *file
	}
	return nil
}

// RegisterCommonFlags declares the flags shared by both subcommands.
func RegisterCommonFlags(flags *pflag.FlagSet, o *Options) {
	flags.StringVar(&o.OrgName, "org-name", "", "GitHub organization to inspect (env ORG_NAME)")
	flags.StringVar(&o.AccessToken, "access-token", "", "Personal access token (env ACCESS_TOKEN)")
	flags.Int64Var(&o.AppID, "app-id", 0, "GitHub App ID (env APP_ID)")
	flags.StringVar(&o.PrivateKey, "private-key", "", "GitHub App private key PEM (env PRIVATE_KEY)")
	flags.StringVar(&o.PrivateKeyFile, "private-key-file", "", "Path to the GitHub App private key (env PRIVATE_KEY_FILE)")
	flags.Int64Var(&o.AppInstallationID, "app-installation-id", 0, "GitHub App installation ID (env APP_INSTALLATION_ID)")
	flags.StringVar(&o.BaseURL, "base-url", DefaultBaseURL, "GitHub API base URL (env BASE_URL)")
	flags.StringVar(&o.ProxyURL, "proxy-url", "", "HTTP proxy URL (env PROXY_URL)")
	flags.BoolVar(&o.Verbose, "verbose", false, "Enable debug logging (env VERBOSE)")
	flags.IntVar(&o.PageSize, "page-size", DefaultPageSize, "Repositories fetched per GraphQL page (env PAGE_SIZE)")
}

// RegisterHarvestFlags declares the flags specific to the repo-stats
// subcommand.
func RegisterHarvestFlags(flags *pflag.FlagSet, o *Options) {
	flags.IntVar(&o.ExtraPageSize, "extra-page-size", DefaultExtraPageSize, "Issues/PRs fetched per sub-pagination page (env EXTRA_PAGE_SIZE)")
	flags.IntVar(&o.RateLimitCheckInterval, "rate-limit-check-interval", DefaultRateLimitCheckInterval, "Rows between rate-limit probes (env RATE_LIMIT_CHECK_INTERVAL)")
	flags.IntVar(&o.RetryMaxAttempts, "retry-max-attempts", DefaultRetryMaxAttempts, "Maximum harvest attempts (env RETRY_MAX_ATTEMPTS)")
	flags.IntVar(&o.RetryInitialDelayMS, "retry-initial-delay", DefaultRetryInitialDelayMS, "Initial retry delay in milliseconds (env RETRY_INITIAL_DELAY)")
	flags.IntVar(&o.RetryMaxDelayMS, "retry-max-delay", DefaultRetryMaxDelayMS, "Maximum retry delay in milliseconds (env RETRY_MAX_DELAY)")
	flags.Float64Var(&o.RetryBackoffFactor, "retry-backoff-factor", DefaultRetryBackoffFactor, "Exponential backoff multiplier (env RETRY_BACKOFF_FACTOR)")
	flags.IntVar(&o.RetrySuccessThreshold, "retry-success-threshold", DefaultRetrySuccessThreshold, "Consecutive successes that reset the retry budget (env RETRY_SUCCESS_THRESHOLD)")
	flags.BoolVar(&o.ResumeFromLastSave, "resume-from-last-save", false, "Resume from the saved progress state (env RESUME_FROM_LAST_SAVE)")
}
