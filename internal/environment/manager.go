package environment

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netpromote/internal/logging"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

// Default environment names created by InitializeDefaults
const (
	DevelopmentName = "development"
	StagingName     = "staging"
	ProductionName  = "production"
)

// DefaultBranches names the branches bound to the default environments
type DefaultBranches struct {
	Development string `yaml:"development" mapstructure:"development"`
	Staging     string `yaml:"staging" mapstructure:"staging"`
	Production  string `yaml:"production" mapstructure:"production"`
}

// Manager owns the environment registry and the promotion requests made
// against one repository. Every method takes the same lock, so calls that
// move the working copy's current branch never interleave.
type Manager struct {
	mu           sync.Mutex
	repo         vcs.Repository
	environments map[string]*Config
	promotions   map[string]*PromotionRequest
	branches     DefaultBranches
	remote       string
	recorder     Recorder
	now          func() time.Time
	logger       zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger overrides the component logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRecorder registers an audit sink for finished requests
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithDefaultBranches overrides the branches used by InitializeDefaults;
// empty fields keep their default
func WithDefaultBranches(b DefaultBranches) Option {
	return func(m *Manager) {
		if b.Development != "" {
			m.branches.Development = b.Development
		}
		if b.Staging != "" {
			m.branches.Staging = b.Staging
		}
		if b.Production != "" {
			m.branches.Production = b.Production
		}
	}
}

// WithRemote makes Execute fetch from and merge the remote-tracking branch
func WithRemote(remote string) Option {
	return func(m *Manager) { m.remote = remote }
}

// NewManager creates a manager with an empty registry
func NewManager(repo vcs.Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		environments: make(map[string]*Config),
		promotions:   make(map[string]*PromotionRequest),
		branches: DefaultBranches{
			Development: "develop",
			Staging:     "staging",
			Production:  "main",
		},
		now:    time.Now,
		logger: logging.Get("environment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds an environment. Names and branches must be unique.
func (m *Manager) Register(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(cfg)
}

func (m *Manager) register(cfg Config) error {
	if cfg.Name == "" {
		return errors.ValidationError("name", cfg.Name, "environment name must not be empty")
	}
	if cfg.Branch == "" {
		return errors.ValidationError("branch", cfg.Branch, "environment branch must not be empty").
			WithContext("environment", cfg.Name)
	}
	if _, exists := m.environments[cfg.Name]; exists {
		return errors.New(errors.ErrCodeDuplicateEnvironment,
			fmt.Sprintf("Environment '%s' already exists", cfg.Name)).
			WithContext("environment", cfg.Name)
	}
	for _, env := range m.environments {
		if env.Branch == cfg.Branch {
			return errors.New(errors.ErrCodeDuplicateBranch,
				fmt.Sprintf("Branch '%s' is already bound to environment '%s'", cfg.Branch, env.Name)).
				WithContext("branch", cfg.Branch).
				WithContext("environment", env.Name)
		}
	}

	now := m.now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	stored := cloneConfig(cfg)
	m.environments[cfg.Name] = &stored

	m.logger.Info().
		Str("environment", cfg.Name).
		Str("type", cfg.Type.String()).
		Str("branch", cfg.Branch).
		Msg("Environment registered")
	return nil
}

// InitializeDefaults registers development, staging and production with
// escalating protection
func (m *Manager) InitializeDefaults() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	defaults := []Config{
		{
			Name:        DevelopmentName,
			Type:        TypeDevelopment,
			Branch:      m.branches.Development,
			Description: "Development environment for testing changes",
		},
		{
			Name:             StagingName,
			Type:             TypeStaging,
			Branch:           m.branches.Staging,
			Description:      "Staging environment for pre-production validation",
			AllowedSources:   []string{DevelopmentName},
			RequiresApproval: true,
			Protection: Protection{
				RequiredReviewers:    1,
				RequireStatusChecks:  true,
				RequiredStatusChecks: []string{"validate"},
			},
		},
		{
			Name:             ProductionName,
			Type:             TypeProduction,
			Branch:           m.branches.Production,
			Description:      "Production environment",
			AllowedSources:   []string{StagingName},
			RequiresApproval: true,
			Protection: Protection{
				RequiredReviewers:    2,
				DismissStaleReviews:  true,
				RequireStatusChecks:  true,
				RequiredStatusChecks: []string{"validate", "staging-verified"},
				RestrictPushes:       true,
			},
		},
	}

	for _, cfg := range defaults {
		if err := m.register(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Switch checks out the branch bound to the named environment
func (m *Manager) Switch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, err := m.lookupEnvironment(name)
	if err != nil {
		return err
	}
	if err := m.repo.Checkout(env.Branch); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
			fmt.Sprintf("Failed to switch to environment '%s'", name)).
			WithContext("environment", name).
			WithContext("branch", env.Branch)
	}

	m.logger.Info().Str("environment", name).Str("branch", env.Branch).Msg("Switched environment")
	return nil
}

// Current returns the environment bound to the checked out branch
func (m *Manager) Current() (*Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch, err := m.repo.CurrentBranch()
	if err != nil {
		m.logger.Debug().Err(err).Msg("No current branch")
		return nil, false
	}
	for _, env := range m.environments {
		if env.Branch == branch {
			c := cloneConfig(*env)
			return &c, true
		}
	}
	return nil, false
}

// Environment returns a copy of the named environment
func (m *Manager) Environment(name string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, err := m.lookupEnvironment(name)
	if err != nil {
		return nil, err
	}
	c := cloneConfig(*env)
	return &c, nil
}

// Environments lists every environment ordered along the hierarchy, then by name
func (m *Manager) Environments() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	envs := make([]Config, 0, len(m.environments))
	for _, env := range m.environments {
		envs = append(envs, cloneConfig(*env))
	}
	sort.Slice(envs, func(i, j int) bool {
		if envs[i].Type != envs[j].Type {
			return envs[i].Type.rank() < envs[j].Type.rank()
		}
		return envs[i].Name < envs[j].Name
	})
	return envs
}

// ValidatePromotionPath checks that source may be promoted into target.
// Hierarchy enforcement is one explicit rule: development never promotes
// straight into production. Everything else is governed by allowed sources
// and the repository's own protection checks.
func (m *Manager) ValidatePromotionPath(source, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validatePath(source, target)
}

func (m *Manager) validatePath(source, target string) error {
	src, err := m.lookupEnvironment(source)
	if err != nil {
		return err
	}
	tgt, err := m.lookupEnvironment(target)
	if err != nil {
		return err
	}

	if source == target {
		return errors.New(errors.ErrCodePathNotAllowed,
			fmt.Sprintf("Cannot promote environment '%s' into itself", source))
	}

	if !tgt.AllowsSource(source) {
		return errors.New(errors.ErrCodePathNotAllowed,
			fmt.Sprintf("Environment '%s' does not accept promotions from '%s'", target, source)).
			WithContext("source", source).
			WithContext("target", target).
			WithContext("allowed_sources", tgt.AllowedSources)
	}

	if src.Type == TypeDevelopment && tgt.Type == TypeProduction {
		return errors.New(errors.ErrCodeHierarchyViolation,
			fmt.Sprintf("Cannot promote '%s' directly to production environment '%s'", source, target)).
			WithContext("source", source).
			WithContext("target", target).
			WithSuggestions("Promote to a staging environment first")
	}

	if checker, ok := m.repo.(vcs.ProtectionChecker); ok {
		return checker.CheckPromotion(src.Branch, tgt.Branch)
	}
	return m.checkBranchesExist(src.Branch, tgt.Branch)
}

func (m *Manager) checkBranchesExist(branches ...string) error {
	existing, err := m.repo.ListBranches("")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to list branches")
	}

	known := make(map[string]bool, len(existing))
	for _, b := range existing {
		known[b.Name] = true
	}
	for _, branch := range branches {
		if !known[branch] {
			return errors.New(errors.ErrCodeBranchNotFound,
				fmt.Sprintf("Branch '%s' not found", branch)).
				WithContext("branch", branch)
		}
	}
	return nil
}

func (m *Manager) lookupEnvironment(name string) (*Config, error) {
	env, ok := m.environments[name]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeEnvironmentNotFound, "environment", name).
			WithSuggestions("List environments with 'netpromote env list'")
	}
	return env, nil
}

// withBranch runs fn with branch checked out and always restores the branch
// that was current before. A failed restore is logged and does not change
// fn's outcome.
func (m *Manager) withBranch(branch string, fn func() error) error {
	original, err := m.repo.CurrentBranch()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBranchNotFound, "Failed to determine current branch")
	}

	if err := m.repo.Checkout(branch); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
			fmt.Sprintf("Failed to checkout branch '%s'", branch)).
			WithContext("branch", branch)
	}
	defer func() {
		if original == branch {
			return
		}
		if err := m.repo.Checkout(original); err != nil {
			m.logger.Warn().Err(err).
				Str("branch", original).
				Msg("Failed to restore original branch")
		}
	}()

	return fn()
}

// Snapshot returns a copy of the registry suitable for persisting
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var state State
	for _, env := range m.environments {
		state.Environments = append(state.Environments, cloneConfig(*env))
	}
	sort.Slice(state.Environments, func(i, j int) bool {
		return state.Environments[i].Name < state.Environments[j].Name
	})
	for _, req := range m.promotions {
		state.Promotions = append(state.Promotions, cloneRequest(*req))
	}
	sortRequests(state.Promotions)
	return state
}

// Restore replaces the registry with a previously taken snapshot
func (m *Manager) Restore(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	envs := make(map[string]*Config, len(state.Environments))
	branches := make(map[string]string, len(state.Environments))
	for _, env := range state.Environments {
		if _, dup := envs[env.Name]; dup {
			return errors.New(errors.ErrCodeDuplicateEnvironment,
				fmt.Sprintf("State contains environment '%s' twice", env.Name))
		}
		if owner, dup := branches[env.Branch]; dup {
			return errors.New(errors.ErrCodeDuplicateBranch,
				fmt.Sprintf("State binds branch '%s' to both '%s' and '%s'", env.Branch, owner, env.Name))
		}
		c := cloneConfig(env)
		envs[env.Name] = &c
		branches[env.Branch] = env.Name
	}

	promotions := make(map[string]*PromotionRequest, len(state.Promotions))
	for _, req := range state.Promotions {
		r := cloneRequest(req)
		promotions[req.ID] = &r
	}

	m.environments = envs
	m.promotions = promotions
	m.logger.Debug().
		Int("environments", len(envs)).
		Int("promotions", len(promotions)).
		Msg("Registry restored")
	return nil
}

func cloneConfig(c Config) Config {
	c.AllowedSources = append([]string(nil), c.AllowedSources...)
	c.Protection.RequiredStatusChecks = append([]string(nil), c.Protection.RequiredStatusChecks...)
	c.Protection.AllowedPushers = append([]string(nil), c.Protection.AllowedPushers...)
	return c
}
