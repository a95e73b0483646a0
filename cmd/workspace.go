package cmd

import (
	"context"

	"netpromote/internal/environment"
	"netpromote/internal/store"
	"netpromote/internal/vcs"
)

// workspace is the repository, registry and audit sink a command acts on
type workspace struct {
	repo     *vcs.GitRepository
	auth     *vcs.AuthManager
	manager  *environment.Manager
	state    *store.FileStore
	recorder *store.SQLRecorder
}

// openWorkspace opens the configured repository and restores the registry
// from the state file
func openWorkspace(ctx context.Context) (*workspace, error) {
	auth := vcs.NewAuthManager(vcs.WithInsecureIgnoreHostKey(settings.SSH.InsecureIgnoreHostKey))
	repo, err := vcs.Open(settings.Repository.Path,
		vcs.WithAuthManager(auth),
		vcs.WithDefaultSignature(settings.Commit.AuthorName, settings.Commit.AuthorEmail),
	)
	if err != nil {
		return nil, err
	}

	ws := &workspace{
		repo:  repo,
		auth:  auth,
		state: store.NewFileStore(settings.StatePath()),
	}

	opts := []environment.Option{
		environment.WithDefaultBranches(settings.Environments.Branches),
		environment.WithRemote(settings.Repository.Remote),
	}
	if settings.Audit.Driver != "" {
		rec, err := store.OpenSQLRecorder(ctx, settings.Audit.Driver, settings.Audit.DSN, settings.Audit.Table)
		if err != nil {
			return nil, err
		}
		if err := rec.EnsureSchema(ctx); err != nil {
			_ = rec.Close()
			return nil, err
		}
		ws.recorder = rec
		opts = append(opts, environment.WithRecorder(rec))
	}
	ws.manager = environment.NewManager(repo, opts...)

	snapshot, err := ws.state.Load()
	if err != nil {
		ws.Close()
		return nil, err
	}
	if err := ws.manager.Restore(snapshot); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// save persists the registry after a mutating command
func (w *workspace) save() error {
	return w.state.Save(w.manager.Snapshot())
}

func (w *workspace) Close() {
	if w.recorder != nil {
		_ = w.recorder.Close()
	}
}

// currentEnvironmentName returns the environment bound to the checked out
// branch, or "" when there is none
func (w *workspace) currentEnvironmentName() string {
	if env, ok := w.manager.Current(); ok {
		return env.Name
	}
	return ""
}
