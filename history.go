// View archive metadata (§6 RPC verbs "archive"/"record", scenario S6):
// rotating a view's content log and reading back facts about a retired
// version, as opposed to compact.go's index-rebuild or view.go's own
// ViewLog.archive rotate mechanics.
package george

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArchiveInfo describes one retired content-log version (§6 "record"
// verb / scenario S6).
type ArchiveInfo struct {
	Version  uint16
	Path     string
	Created  int64 // Unix seconds, from the archived file's mtime
	Sealed   bool  // true once a newer version exists
	ByteSize int64
}

// ArchiveView rotates view's content log: the current file is flushed,
// closed, moved under archive/<version>/, compressed, and a fresh current
// file opened at version+1. Reads of keys written before the rotation
// keep succeeding afterwards, since their (version,len,offset) triples
// still resolve against the now-archived file (scenario S6).
func (e *Engine) ArchiveView(dbName, viewName string) (ArchiveInfo, error) {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return ArchiveInfo{}, err
	}

	v.writerLock.Lock()
	defer v.writerLock.Unlock()

	archivedPath, newVersion, err := v.log.archive()
	if err != nil {
		return ArchiveInfo{}, err
	}
	e.cfg.Logger.Info("view archived", "database", dbName, "view", viewName,
		"new_version", newVersion, "path", archivedPath)
	return v.archiveInfo(archivedPath)
}

// ViewRecord returns archive metadata for view's content-log version
// (scenario S6's `view_record("db","v", 0)`). version 0 means "the oldest
// retained archived version".
func (e *Engine) ViewRecord(dbName, viewName string, version uint16) (ArchiveInfo, error) {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return ArchiveInfo{}, err
	}

	target := version
	if target == 0 {
		entries, err := os.ReadDir(filepath.Join(v.dir, "archive"))
		if err != nil || len(entries) == 0 {
			return ArchiveInfo{}, fmt.Errorf("%w: view %q has no archived versions", ErrNotFound, viewName)
		}
		var oldest uint16
		found := false
		for _, de := range entries {
			var n uint16
			if _, err := fmt.Sscanf(de.Name(), "%d", &n); err == nil {
				if !found || n < oldest {
					oldest = n
					found = true
				}
			}
		}
		if !found {
			return ArchiveInfo{}, fmt.Errorf("%w: view %q has no archived versions", ErrNotFound, viewName)
		}
		target = oldest
	}

	path := filepath.Join(v.dir, "archive", fmt.Sprintf("%d", target), fmt.Sprintf("content.v%d", target))
	return v.archiveInfoAt(target, path)
}

func (v *View) archiveInfo(path string) (ArchiveInfo, error) {
	var version uint16
	base := filepath.Base(filepath.Dir(path))
	fmt.Sscanf(base, "%d", &version)
	return v.archiveInfoAt(version, path)
}

func (v *View) archiveInfoAt(version uint16, path string) (ArchiveInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return ArchiveInfo{
		Version:  version,
		Path:     path,
		Created:  fi.ModTime().Unix(),
		Sealed:   version < v.log.currentVersion(),
		ByteSize: fi.Size(),
	}, nil
}
