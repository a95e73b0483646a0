package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"netpromote/internal/common"
	"netpromote/internal/conflict"
	"netpromote/internal/environment"
	"netpromote/internal/store"
	"netpromote/pkg/errors"
)

const (
	// FileName is the config file base name searched for
	FileName = "netpromote"
	// EnvPrefix prefixes every environment variable override
	EnvPrefix = "NETPROMOTE"
)

// Settings is the full configuration of the tool
type Settings struct {
	Repository   RepositorySettings  `mapstructure:"repository" yaml:"repository"`
	StateFile    string              `mapstructure:"state_file" yaml:"state_file"`
	Environments EnvironmentSettings `mapstructure:"environments" yaml:"environments"`
	Conflicts    ConflictSettings    `mapstructure:"conflicts" yaml:"conflicts"`
	Audit        AuditSettings       `mapstructure:"audit" yaml:"audit"`
	Commit       CommitSettings      `mapstructure:"commit" yaml:"commit"`
	SSH          SSHSettings         `mapstructure:"ssh" yaml:"ssh"`
	Log          LogSettings         `mapstructure:"log" yaml:"log"`

	// ConfigFile is the file the settings were read from, empty when only
	// defaults and environment variables applied
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

type RepositorySettings struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Remote fetched before each promotion. Empty picks origin when it
	// exists and skips the fetch for local-only repositories.
	Remote string `mapstructure:"remote" yaml:"remote"`
}

type EnvironmentSettings struct {
	Branches environment.DefaultBranches `mapstructure:"branches" yaml:"branches"`
}

type ConflictSettings struct {
	AutoResolutionPatterns   []string                `mapstructure:"auto_resolution_patterns" yaml:"auto_resolution_patterns"`
	ManualResolutionPatterns []string                `mapstructure:"manual_resolution_patterns" yaml:"manual_resolution_patterns"`
	DefaultStrategies        map[string]string       `mapstructure:"default_strategies" yaml:"default_strategies"`
	BackupOriginals          bool                    `mapstructure:"backup_originals" yaml:"backup_originals"`
	Scoring                  conflict.ScoringWeights `mapstructure:"scoring" yaml:"scoring"`
}

// AuditSettings select the promotion audit table. An empty driver disables it.
type AuditSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Table  string `mapstructure:"table" yaml:"table"`
}

type CommitSettings struct {
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

type SSHSettings struct {
	InsecureIgnoreHostKey bool `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
}

type LogSettings struct {
	Verbosity int `mapstructure:"verbosity" yaml:"verbosity"`
}

// GetConfigPath returns the per-user configuration directory
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".netpromote")
}

func setDefaults(v *viper.Viper) {
	policy := conflict.DefaultPolicy()
	weights := conflict.DefaultScoringWeights()

	strategies := make(map[string]any, len(policy.DefaultStrategies))
	for t, s := range policy.DefaultStrategies {
		strategies[t.String()] = s.String()
	}

	v.SetDefault("repository.path", ".")
	v.SetDefault("repository.remote", "")
	v.SetDefault("state_file", store.DefaultStateFile)
	v.SetDefault("environments.branches.development", "develop")
	v.SetDefault("environments.branches.staging", "staging")
	v.SetDefault("environments.branches.production", "main")
	v.SetDefault("conflicts.auto_resolution_patterns", policy.AutoResolutionPatterns)
	v.SetDefault("conflicts.manual_resolution_patterns", policy.ManualResolutionPatterns)
	v.SetDefault("conflicts.default_strategies", strategies)
	v.SetDefault("conflicts.backup_originals", true)
	v.SetDefault("conflicts.scoring.base", weights.Base)
	v.SetDefault("conflicts.scoring.auto_resolvable_bonus", weights.AutoResolvableBonus)
	v.SetDefault("conflicts.scoring.production_factor", weights.ProductionFactor)
	v.SetDefault("conflicts.scoring.development_bonus", weights.DevelopmentBonus)
	v.SetDefault("conflicts.scoring.safe_extension_bonus", weights.SafeExtensionBonus)
	v.SetDefault("audit.driver", "")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.table", store.DefaultAuditTable)
	v.SetDefault("commit.author_name", "netpromote")
	v.SetDefault("commit.author_email", "netpromote@localhost")
	v.SetDefault("ssh.insecure_ignore_host_key", false)
	v.SetDefault("log.verbosity", 0)
}

// Load reads settings from configFile, or from netpromote.yaml in the
// working directory or GetConfigPath() when configFile is empty. A missing
// file is not an error. NETPROMOTE_* environment variables override file
// values, e.g. NETPROMOTE_AUDIT_DSN for audit.dsn.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid config file path")
		}
		if _, err := os.Stat(cleaned); os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "Config file not found").
				WithContext("file", configFile)
		}
		v.SetConfigFile(cleaned)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(GetConfigPath())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read config file").
				WithContext("file", v.ConfigFileUsed())
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode configuration")
	}
	s.ConfigFile = v.ConfigFileUsed()

	if IsEncrypted(s.Audit.DSN) {
		dsn, err := DecryptValue(s.Audit.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decrypt audit.dsn").
				WithSuggestions("Set NETPROMOTE_ENCRYPTION_KEY to the key used for 'netpromote config encrypt'")
		}
		s.Audit.DSN = dsn
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the values the components cannot check themselves
func (s *Settings) Validate() error {
	if s.Repository.Path == "" {
		return errors.ConfigError("repository.path must not be empty", "repository.path")
	}
	if s.StateFile == "" {
		return errors.ConfigError("state_file must not be empty", "state_file")
	}
	b := s.Environments.Branches
	if b.Development == "" || b.Staging == "" || b.Production == "" {
		return errors.ConfigError("every default environment needs a branch", "environments.branches")
	}
	if b.Development == b.Staging || b.Staging == b.Production || b.Development == b.Production {
		return errors.ConfigError("default environments must use distinct branches", "environments.branches")
	}
	switch s.Audit.Driver {
	case "", "postgres", "snowflake":
	default:
		return errors.ConfigError("audit.driver must be 'postgres' or 'snowflake'", "audit.driver").
			WithContext("value", s.Audit.Driver)
	}
	if s.Audit.Driver != "" && s.Audit.DSN == "" {
		return errors.ConfigError("audit.dsn is required when audit.driver is set", "audit.dsn")
	}
	if _, err := s.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy converts the conflict settings into a validated conflict.Policy
func (s *Settings) Policy() (conflict.Policy, error) {
	p := conflict.Policy{
		AutoResolutionPatterns:   append([]string(nil), s.Conflicts.AutoResolutionPatterns...),
		ManualResolutionPatterns: append([]string(nil), s.Conflicts.ManualResolutionPatterns...),
		DefaultStrategies:        make(map[conflict.Type]conflict.Strategy, len(s.Conflicts.DefaultStrategies)),
	}

	keys := make([]string, 0, len(s.Conflicts.DefaultStrategies))
	for k := range s.Conflicts.DefaultStrategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		t, err := conflict.ParseType(k)
		if err != nil {
			return p, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Unknown conflict type in conflicts.default_strategies").
				WithContext("field", "conflicts.default_strategies").
				WithContext("value", k)
		}
		strategy, err := conflict.ParseStrategy(s.Conflicts.DefaultStrategies[k])
		if err != nil {
			return p, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Unknown strategy in conflicts.default_strategies").
				WithContext("field", "conflicts.default_strategies."+k)
		}
		p.DefaultStrategies[t] = strategy
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// StatePath resolves the state file against the repository path
func (s *Settings) StatePath() string {
	if filepath.IsAbs(s.StateFile) {
		return s.StateFile
	}
	return filepath.Join(s.Repository.Path, s.StateFile)
}
