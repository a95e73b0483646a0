package vcs

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestURLHelpers(t *testing.T) {
	tests := []struct {
		url   string
		ssh   bool
		https bool
		host  string
	}{
		{"git@github.com:netops/configs.git", true, false, "github.com"},
		{"ssh://git@gitlab.example.com:22/netops/configs.git", true, false, "gitlab.example.com"},
		{"https://github.com/netops/configs.git", false, true, "github.com"},
		{"https://user@git.internal.net/configs.git", false, true, "git.internal.net"},
		{"/srv/git/configs.git", false, false, "srv"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.ssh, IsSSHURL(tt.url))
			assert.Equal(t, tt.https, IsHTTPSURL(tt.url))
			if tt.ssh || tt.https {
				assert.Equal(t, tt.host, ExtractHost(tt.url))
			}
		})
	}
}

func TestAuthForLocalURL(t *testing.T) {
	am := NewAuthManager(WithEnv(envMap(nil)))

	auth, err := am.AuthFor("/srv/git/configs.git")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestHTTPSAuthFromKeyring(t *testing.T) {
	keyring.MockInit()
	am := NewAuthManager(WithEnv(envMap(map[string]string{"GIT_TOKEN": "env-token"})))

	require.NoError(t, am.StoreToken("github.com", "keyring-token"))

	auth, err := am.AuthFor("https://github.com/netops/configs.git")
	require.NoError(t, err)
	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "keyring-token", basic.Password)

	require.NoError(t, am.RemoveToken("github.com"))
	require.NoError(t, am.RemoveToken("github.com"))

	auth, err = am.AuthFor("https://github.com/netops/configs.git")
	require.NoError(t, err)
	assert.Equal(t, "env-token", auth.(*http.BasicAuth).Password)
}

func TestHTTPSAuthFromEnvironment(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		name     string
		env      map[string]string
		url      string
		user     string
		password string
	}{
		{
			name:     "host specific token",
			env:      map[string]string{"GIT_INTERNAL_NET_TOKEN": "host", "GIT_TOKEN": "generic"},
			url:      "https://git.internal.net/configs.git",
			user:     "token",
			password: "host",
		},
		{
			name:     "github token",
			env:      map[string]string{"GITHUB_TOKEN": "gh"},
			url:      "https://github.com/netops/configs.git",
			user:     "token",
			password: "gh",
		},
		{
			name:     "gitlab token",
			env:      map[string]string{"GITLAB_TOKEN": "gl"},
			url:      "https://gitlab.com/netops/configs.git",
			user:     "token",
			password: "gl",
		},
		{
			name:     "username and password",
			env:      map[string]string{"GIT_USERNAME": "ops", "GIT_PASSWORD": "secret"},
			url:      "https://git.internal.net/configs.git",
			user:     "ops",
			password: "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAuthManager(WithEnv(envMap(tt.env)))
			auth, err := am.AuthFor(tt.url)
			require.NoError(t, err)

			basic, ok := auth.(*http.BasicAuth)
			require.True(t, ok)
			assert.Equal(t, tt.user, basic.Username)
			assert.Equal(t, tt.password, basic.Password)
		})
	}
}

func TestHTTPSAuthAnonymous(t *testing.T) {
	keyring.MockInit()
	am := NewAuthManager(WithEnv(envMap(nil)))

	auth, err := am.AuthFor("https://git.internal.net/configs.git")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestSSHAuthWithoutKeys(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	am := NewAuthManager(WithSSHKeyDir(t.TempDir()), WithEnv(envMap(nil)))

	_, err := am.AuthFor("git@github.com:netops/configs.git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No SSH authentication method available")
}
