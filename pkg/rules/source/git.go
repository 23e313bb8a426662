package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/rules/parser"
)

// CommitInfo describes the checked-out commit.
type CommitInfo struct {
	SHA       string
	Author    string
	Email     string
	Timestamp time.Time
	Message   string
	Branch    string
}

// GitSource loads bundles from a directory inside a git repository. The
// bundle version is the HEAD commit SHA.
type GitSource struct {
	cfg       config.GitConfig
	localPath string
	auth      GitAuth
	parser    *parser.Parser
	logger    *slog.Logger

	mu   sync.RWMutex
	repo *gogit.Repository
}

// NewGitSource creates a git source. The repository is cloned on the first
// Load or an explicit Clone.
func NewGitSource(cfg *config.GitConfig, p *parser.Parser, logger *slog.Logger) (*GitSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	auth, err := NewGitAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "permitgate-rules")
	}
	if p == nil {
		p = parser.NewParser()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GitSource{
		cfg:       *cfg,
		localPath: localPath,
		auth:      auth,
		parser:    p,
		logger:    logger.With("component", "rules.git", "repository", cfg.Repository),
	}, nil
}

// Name returns "git:<repository>@<branch>".
func (s *GitSource) Name() string {
	return fmt.Sprintf("git:%s@%s", s.cfg.Repository, s.cfg.Branch)
}

// Clone opens the local checkout if present, otherwise clones it. With
// CleanOnStart the checkout is removed first.
func (s *GitSource) Clone(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLocked(ctx)
}

func (s *GitSource) cloneLocked(ctx context.Context) error {
	start := time.Now()

	if s.cfg.Clone.CleanOnStart {
		if err := os.RemoveAll(s.localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(s.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		s.repo = repo
		s.logger.Info("opened existing checkout", "path", s.localPath)
		return nil
	}

	if err := os.MkdirAll(s.localPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := s.auth.Method()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	opts := &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  s.cfg.Clone.Depth > 0,
		Depth:         s.cfg.Clone.Depth,
		Auth:          auth,
	}

	cloneCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.localPath, false, opts)
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	s.logger.Info("cloned repository",
		"branch", s.cfg.Branch,
		"auth", s.auth.Type(),
		"duration", time.Since(start))
	return nil
}

// Load parses the bundle files at the configured path of the checkout,
// cloning first if needed.
func (s *GitSource) Load(ctx context.Context) (*parser.Bundle, error) {
	s.mu.Lock()
	if s.repo == nil {
		if err := s.cloneLocked(ctx); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	bundle, err := loadFiles(ctx, filepath.Join(s.localPath, s.cfg.Path), s.parser)
	if err != nil {
		return nil, err
	}
	bundle.Version = head.Hash().String()
	return bundle, nil
}

// Sync pulls the tracked branch and reports whether HEAD moved.
func (s *GitSource) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return false, ErrNotInitialized
	}

	before, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to get HEAD: %w", err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := s.auth.Method()
	if err != nil {
		return false, fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	// never force; a diverged checkout is an error
	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("failed to pull: %w", err)
	}

	after, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to get new HEAD: %w", err)
	}

	changed := before.Hash() != after.Hash()
	if changed {
		s.logger.Info("pulled new commits",
			"from", before.Hash().String(),
			"to", after.Hash().String())
	}
	return changed, nil
}

// Head returns the checked-out commit.
func (s *GitSource) Head() (*CommitInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.repo == nil {
		return nil, ErrNotInitialized
	}

	ref, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return &CommitInfo{
		SHA:       commit.Hash.String(),
		Author:    commit.Author.Name,
		Email:     commit.Author.Email,
		Timestamp: commit.Author.When,
		Message:   commit.Message,
		Branch:    s.cfg.Branch,
	}, nil
}

func (s *GitSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Poll.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Poll.Timeout)
}
