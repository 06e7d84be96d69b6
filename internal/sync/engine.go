// Package sync implements the bidirectional sync engine. Every pair
// decision compares the current fingerprints of both sides against the
// last-observed hashes in the state store, so deletions are only
// propagated for paths the engine has actually seen before.
package sync

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/secho/egnyte-client-linux/internal/api"
	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/logging"
	"github.com/secho/egnyte-client-linux/internal/sync/state"
)

// RemoteClient is the slice of the API surface the engine consumes
type RemoteClient interface {
	ListFolder(ctx context.Context, remotePath string) ([]api.Metadata, error)
	GetFileInfo(ctx context.Context, remotePath string) (api.Metadata, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) ([]byte, error)
	UploadFile(ctx context.Context, localPath, remotePath string, overwrite, createFolders bool) (api.Metadata, error)
	CreateFolder(ctx context.Context, remotePath string) error
	DeleteFile(ctx context.Context, remotePath string) error
}

// Action names what a sync attempt did to a pair
type Action string

const (
	ActionSkip         Action = "skip"
	ActionUpload       Action = "upload"
	ActionDownload     Action = "download"
	ActionCreateFolder Action = "create_folder"
	ActionDeleteLocal  Action = "delete_local"
	ActionDeleteRemote Action = "delete_remote"
)

// Result reports the outcome for one path pair. Errors are captured
// per pair so one bad file never aborts a folder sync.
type Result struct {
	LocalPath  string `json:"localPath"`
	RemotePath string `json:"remotePath"`
	Action     Action `json:"action"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Decision is the direction chosen for a pair
type Decision int

const (
	DecisionNone Decision = iota
	DecisionUp
	DecisionDown
	DecisionDeleteLocal
	DecisionDeleteRemote
)

// Engine syncs configured path pairs through a RemoteClient
type Engine struct {
	client RemoteClient
	cfg    *config.Config
	state  *state.Store
	logger logging.Logger
}

// NewEngine creates a sync engine
func NewEngine(client RemoteClient, cfg *config.Config, store *state.Store, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{client: client, cfg: cfg, state: store, logger: logger}
}

// Decide picks the sync direction for a pair. A nil fingerprint means
// the side is absent. The deletion branches only fire when the state
// record shows the missing side was observed with content before; a
// never-synced file on either side is uploaded or downloaded, never
// deleted. A local directory without a remote counterpart is left
// alone.
func Decide(local, remote *Fingerprint, rec state.Record, known bool, policy config.EffectivePolicy) Decision {
	switch {
	case local == nil && remote == nil:
		return DecisionNone

	case remote == nil:
		if known && rec.RemoteObserved() && policy.DeleteLocalOnRemoteMissing {
			return DecisionDeleteLocal
		}
		if local.IsDir {
			return DecisionNone
		}
		return DecisionUp

	case local == nil:
		if known && rec.LocalObserved() && policy.DeleteRemoteOnLocalMissing {
			return DecisionDeleteRemote
		}
		return DecisionDown
	}

	// Both present
	if local.IsDir && remote.IsDir {
		return DecisionNone
	}
	if local.Hash != "" && local.Hash == remote.Hash {
		return DecisionNone
	}

	localChanged := !known || !localUnchanged(local, rec)
	remoteChanged := !known || !remoteUnchanged(remote, rec)
	switch {
	case !localChanged && !remoteChanged:
		return DecisionNone
	case localChanged && !remoteChanged:
		return DecisionUp
	case !localChanged && remoteChanged:
		return DecisionDown
	}

	// Both sides changed since the last observation
	switch policy.ConflictPolicy {
	case config.ConflictLocal:
		return DecisionUp
	case config.ConflictRemote:
		return DecisionDown
	default:
		if local.ModTime.After(remote.ModTime) {
			return DecisionUp
		}
		return DecisionDown
	}
}

func localUnchanged(fp *Fingerprint, rec state.Record) bool {
	return rec.LocalHash != nil && fp.Hash == *rec.LocalHash
}

func remoteUnchanged(fp *Fingerprint, rec state.Record) bool {
	return rec.RemoteHash != nil && fp.Hash == *rec.RemoteHash
}

// SyncFile evaluates and executes at most one action for a pair. The
// state record is refreshed with post-action fingerprints on success
// and on no-ops; a failed action leaves the record alone so the next
// pass retries.
func (e *Engine) SyncFile(ctx context.Context, localPath, remotePath string, policy config.EffectivePolicy) Result {
	res := Result{LocalPath: localPath, RemotePath: remotePath}

	local := localFingerprint(localPath)
	remote := e.remoteFingerprint(ctx, remotePath)
	rec, known := e.state.Get(localPath, remotePath)

	var err error
	switch Decide(local, remote, rec, known, policy) {
	case DecisionNone:
		res.Action = ActionSkip

	case DecisionUp:
		if local.IsDir {
			res.Action = ActionCreateFolder
			err = e.client.CreateFolder(ctx, remotePath)
		} else {
			res.Action = ActionUpload
			_, err = e.client.UploadFile(ctx, localPath, remotePath, true, true)
		}

	case DecisionDown:
		if remote.IsDir {
			res.Action = ActionCreateFolder
			err = os.MkdirAll(localPath, 0755)
		} else {
			res.Action = ActionDownload
			_, err = e.client.DownloadFile(ctx, remotePath, localPath)
		}

	case DecisionDeleteLocal:
		res.Action = ActionDeleteLocal
		if local.IsDir {
			err = os.RemoveAll(localPath)
		} else {
			err = os.Remove(localPath)
		}

	case DecisionDeleteRemote:
		res.Action = ActionDeleteRemote
		err = e.client.DeleteFile(ctx, remotePath)
	}

	if err != nil {
		res.Error = err.Error()
		e.logger.WithContext(ctx).Warn("Sync action failed",
			logging.F("action", string(res.Action)),
			logging.F("local", localPath),
			logging.F("remote", remotePath),
			logging.F("error", err.Error()))
		return res
	}
	res.Success = true

	if res.Action == ActionSkip {
		e.recordState(localPath, remotePath, local, remote)
	} else {
		e.recordState(localPath, remotePath, localFingerprint(localPath), e.remoteFingerprint(ctx, remotePath))
	}
	return res
}

// recordState persists the observed hashes for a pair. An absent side
// is recorded as null so a later disappearance of the other side can
// be told apart from a never-synced pair.
func (e *Engine) recordState(localPath, remotePath string, local, remote *Fingerprint) {
	var localHash, remoteHash *string
	if local != nil {
		h := local.Hash
		localHash = &h
	}
	if remote != nil {
		h := remote.Hash
		remoteHash = &h
	}
	if err := e.state.Put(localPath, remotePath, localHash, remoteHash); err != nil {
		e.logger.Warn("Persisting sync state failed", logging.F("error", err.Error()))
	}
}

// SyncFolder syncs a folder pair: remote items first, then a pass over
// local entries the remote listing did not mention. A failed remote
// listing degrades to the local-only pass instead of aborting.
func (e *Engine) SyncFolder(ctx context.Context, localRoot, remoteRoot string, recursive bool, policy config.EffectivePolicy) []Result {
	var results []Result

	if err := os.MkdirAll(localRoot, 0755); err != nil {
		return append(results, Result{
			LocalPath: localRoot, RemotePath: remoteRoot,
			Action: ActionCreateFolder, Error: err.Error(),
		})
	}

	remoteRoot = normalizeRemote(remoteRoot)

	items, err := e.client.ListFolder(ctx, remoteRoot)
	if err != nil {
		e.logger.WithContext(ctx).Warn("Listing remote folder failed",
			logging.F("path", remoteRoot), logging.F("error", err.Error()))
		items = nil
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[item.Path] = struct{}{}

		rel := remoteRelative(item.Path, remoteRoot)
		if rel == "" {
			continue
		}
		itemLocal := filepath.Join(localRoot, filepath.FromSlash(rel))

		if item.IsFolder {
			if recursive {
				results = append(results, e.SyncFolder(ctx, itemLocal, item.Path, true, policy)...)
			} else if err := os.MkdirAll(itemLocal, 0755); err != nil {
				results = append(results, Result{
					LocalPath: itemLocal, RemotePath: item.Path,
					Action: ActionCreateFolder, Error: err.Error(),
				})
			}
			continue
		}
		results = append(results, e.SyncFile(ctx, itemLocal, item.Path, policy))
	}

	results = append(results, e.syncLocalOnly(ctx, localRoot, remoteRoot, recursive, seen, policy)...)
	return results
}

// syncLocalOnly walks local entries without a remote counterpart.
// Subtrees the remote listing knows are skipped: their recursive
// SyncFolder call covers them.
func (e *Engine) syncLocalOnly(ctx context.Context, localRoot, remoteRoot string, recursive bool, seen map[string]struct{}, policy config.EffectivePolicy) []Result {
	var results []Result

	if !recursive {
		entries, err := os.ReadDir(localRoot)
		if err != nil {
			return results
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			itemRemote := path.Join(remoteRoot, entry.Name())
			if _, ok := seen[itemRemote]; ok {
				continue
			}
			results = append(results, e.SyncFile(ctx, filepath.Join(localRoot, entry.Name()), itemRemote, policy))
		}
		return results
	}

	_ = filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || p == localRoot {
			return nil
		}
		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return nil
		}
		itemRemote := path.Join(remoteRoot, filepath.ToSlash(rel))
		if _, ok := seen[itemRemote]; ok {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		results = append(results, e.SyncFile(ctx, p, itemRemote, policy))
		return nil
	})
	return results
}

// SyncAll runs a recursive sync over every configured root pair
func (e *Engine) SyncAll(ctx context.Context) []Result {
	var results []Result
	for _, entry := range e.cfg.SyncEntries() {
		policy := e.cfg.ResolvePolicy(entry.Policy)
		e.logger.WithContext(ctx).Info("Syncing root",
			logging.F("local", entry.LocalRoot), logging.F("remote", entry.RemoteRoot))
		results = append(results, e.SyncFolder(ctx, entry.LocalRoot, entry.RemoteRoot, true, policy)...)
	}
	return results
}

func normalizeRemote(remotePath string) string {
	remotePath = strings.TrimRight(remotePath, "/")
	if remotePath == "" {
		return "/"
	}
	return remotePath
}

func remoteRelative(itemPath, root string) string {
	if root == "/" {
		return strings.TrimPrefix(itemPath, "/")
	}
	rel := strings.TrimPrefix(itemPath, root)
	return strings.TrimPrefix(rel, "/")
}
