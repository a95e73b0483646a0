package vcs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
	xssh "golang.org/x/crypto/ssh"

	"netpromote/internal/logging"
	"netpromote/pkg/errors"
)

const (
	tokenService      = "netpromote-git-token"
	passphraseService = "netpromote-ssh-passphrase"
)

// AuthManager resolves credentials for fetching from a remote URL.
// HTTPS remotes try the system keyring, then environment tokens; SSH remotes
// try the agent, then default key files whose passphrase may live in the keyring.
type AuthManager struct {
	mu                    sync.RWMutex
	sshUser               string
	sshKeyDir             string
	insecureIgnoreHostKey bool
	getenv                func(string) string
	logger                zerolog.Logger
}

// AuthOption configures an AuthManager
type AuthOption func(*AuthManager)

// WithInsecureIgnoreHostKey disables SSH host key verification
func WithInsecureIgnoreHostKey(ignore bool) AuthOption {
	return func(am *AuthManager) { am.insecureIgnoreHostKey = ignore }
}

// WithSSHKeyDir sets the directory searched for default SSH keys
func WithSSHKeyDir(dir string) AuthOption {
	return func(am *AuthManager) { am.sshKeyDir = dir }
}

// WithEnv replaces the environment lookup, mainly for tests
func WithEnv(getenv func(string) string) AuthOption {
	return func(am *AuthManager) { am.getenv = getenv }
}

// NewAuthManager creates an authentication manager
func NewAuthManager(opts ...AuthOption) *AuthManager {
	home, _ := os.UserHomeDir()
	am := &AuthManager{
		sshUser:   "git",
		sshKeyDir: filepath.Join(home, ".ssh"),
		getenv:    os.Getenv,
		logger:    logging.Get("vcs.auth"),
	}
	for _, opt := range opts {
		opt(am)
	}
	return am
}

// AuthFor returns the auth method for remoteURL; nil means anonymous or local
func (am *AuthManager) AuthFor(remoteURL string) (transport.AuthMethod, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	switch {
	case IsSSHURL(remoteURL):
		return am.sshAuth()
	case IsHTTPSURL(remoteURL):
		return am.httpsAuth(ExtractHost(remoteURL)), nil
	default:
		return nil, nil
	}
}

// StoreToken saves a personal access token for host in the system keyring
func (am *AuthManager) StoreToken(host, token string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	if err := keyring.Set(tokenService, host, token); err != nil {
		return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Failed to store token in keyring").
			WithContext("host", host)
	}
	return nil
}

// RemoveToken deletes a stored token for host
func (am *AuthManager) RemoveToken(host string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	if err := keyring.Delete(tokenService, host); err != nil && err != keyring.ErrNotFound {
		return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Failed to remove token from keyring")
	}
	return nil
}

func (am *AuthManager) httpsAuth(host string) transport.AuthMethod {
	if token, err := keyring.Get(tokenService, host); err == nil && token != "" {
		return &http.BasicAuth{Username: "token", Password: token}
	}

	hostVar := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(host)) + "_TOKEN"
	token := am.getenv(hostVar)
	if token == "" {
		switch {
		case strings.Contains(host, "github"):
			token = am.getenv("GITHUB_TOKEN")
		case strings.Contains(host, "gitlab"):
			token = am.getenv("GITLAB_TOKEN")
		}
	}
	if token == "" {
		token = am.getenv("GIT_TOKEN")
	}
	if token != "" {
		return &http.BasicAuth{Username: "token", Password: token}
	}

	if user, pass := am.getenv("GIT_USERNAME"), am.getenv("GIT_PASSWORD"); user != "" && pass != "" {
		return &http.BasicAuth{Username: user, Password: pass}
	}

	am.logger.Debug().Str("host", host).Msg("No credentials found, fetching anonymously")
	return nil
}

func (am *AuthManager) sshAuth() (transport.AuthMethod, error) {
	if auth, err := gitssh.NewSSHAgentAuth(am.sshUser); err == nil {
		am.applyHostKeyPolicy(&auth.HostKeyCallbackHelper)
		return auth, nil
	}

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(am.sshKeyDir, name)
		if _, err := os.Stat(keyPath); err != nil {
			continue
		}

		auth, err := gitssh.NewPublicKeysFromFile(am.sshUser, keyPath, "")
		if err != nil && strings.Contains(err.Error(), "passphrase") {
			if passphrase, kerr := keyring.Get(passphraseService, name); kerr == nil {
				auth, err = gitssh.NewPublicKeysFromFile(am.sshUser, keyPath, passphrase)
			}
		}
		if err != nil {
			am.logger.Debug().Err(err).Str("key", keyPath).Msg("Skipping SSH key")
			continue
		}
		am.applyHostKeyPolicy(&auth.HostKeyCallbackHelper)
		return auth, nil
	}

	return nil, errors.New(errors.ErrCodeAuthenticationFailed,
		"No SSH authentication method available").
		WithSuggestions(
			"Add your key to the SSH agent with 'ssh-add'",
			"Place a key in ~/.ssh (id_ed25519, id_rsa or id_ecdsa)",
		)
}

func (am *AuthManager) applyHostKeyPolicy(helper *gitssh.HostKeyCallbackHelper) {
	if am.insecureIgnoreHostKey {
		helper.HostKeyCallback = xssh.InsecureIgnoreHostKey()
	}
}

// IsSSHURL checks if a git URL is using SSH protocol
func IsSSHURL(gitURL string) bool {
	return strings.HasPrefix(gitURL, "git@") || strings.HasPrefix(gitURL, "ssh://")
}

// IsHTTPSURL checks if a git URL is using HTTP(S) protocol
func IsHTTPSURL(gitURL string) bool {
	return strings.HasPrefix(gitURL, "https://") || strings.HasPrefix(gitURL, "http://")
}

// ExtractHost extracts the host from a Git URL
func ExtractHost(gitURL string) string {
	url := gitURL
	for _, prefix := range []string{"https://", "http://", "ssh://", "git@"} {
		url = strings.TrimPrefix(url, prefix)
	}
	if at := strings.Index(url, "@"); at >= 0 {
		url = url[at+1:]
	}
	if idx := strings.IndexAny(url, "/:"); idx > 0 {
		url = url[:idx]
	}
	return url
}
