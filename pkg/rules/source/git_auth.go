package source

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/permitgate/pkg/config"
)

// GitAuth produces transport credentials for clone and pull.
type GitAuth interface {
	// Method returns the transport auth method; nil means anonymous.
	Method() (transport.AuthMethod, error)

	// Type names the auth kind for logs.
	Type() string
}

// tokenAuth sends an HTTPS token as the basic-auth password.
type tokenAuth struct {
	token string
}

func (a tokenAuth) Method() (transport.AuthMethod, error) {
	if a.token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}
	// any username works for token auth
	return &http.BasicAuth{Username: "git", Password: a.token}, nil
}

func (a tokenAuth) Type() string { return "token" }

// sshAuth loads a private key file, refusing keys readable by others.
type sshAuth struct {
	keyPath    string
	passphrase string
}

func (a sshAuth) Method() (transport.AuthMethod, error) {
	if a.keyPath == "" {
		return nil, fmt.Errorf("ssh key path cannot be empty")
	}

	info, err := os.Stat(a.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access SSH key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
	}

	keys, err := ssh.NewPublicKeysFromFile("git", a.keyPath, a.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return keys, nil
}

func (a sshAuth) Type() string { return "ssh" }

type noAuth struct{}

func (noAuth) Method() (transport.AuthMethod, error) { return nil, nil }

func (noAuth) Type() string { return "none" }

// NewGitAuth builds the auth for cfg. Supported types are token, ssh and
// none; an empty type means none.
func NewGitAuth(cfg config.GitAuthConfig) (GitAuth, error) {
	switch cfg.Type {
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires non-empty token")
		}
		return tokenAuth{token: cfg.Token}, nil
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires ssh_key_path")
		}
		return sshAuth{keyPath: cfg.SSHKeyPath, passphrase: cfg.SSHKeyPassphrase}, nil
	case "none", "":
		return noAuth{}, nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
	}
}
