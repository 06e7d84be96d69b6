package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/secho/egnyte-client-linux/internal/api"
)

// Fingerprint captures one side of a sync pair at a point in time.
// Hash is empty for folders and for files that could not be read; the
// decision procedure treats an empty hash as "present but unhashable".
type Fingerprint struct {
	Size    int64
	ModTime time.Time
	Hash    string
	IsDir   bool
}

// localFingerprint stats and hashes a local path. A missing path
// returns nil; hashing failures degrade to an empty hash rather than
// failing the whole decision.
func localFingerprint(path string) *Fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	fp := &Fingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !fp.IsDir {
		fp.Hash = hashFile(path)
	}
	return fp
}

// hashFile streams a file through MD5, returning "" on any error
func hashFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// remoteFingerprint fetches metadata for a remote path. A 404 (or any
// lookup failure) returns nil, meaning the path is treated as absent.
func (e *Engine) remoteFingerprint(ctx context.Context, remotePath string) *Fingerprint {
	info, err := e.client.GetFileInfo(ctx, remotePath)
	if err != nil {
		return nil
	}
	return fingerprintFromMetadata(info)
}

func fingerprintFromMetadata(info api.Metadata) *Fingerprint {
	return &Fingerprint{
		Size:    info.Size,
		ModTime: info.ModTime(),
		Hash:    info.Checksum,
		IsDir:   info.IsFolder,
	}
}
