// Engine lifecycle: Config, Open, Close. Generalises the teacher's db.go
// lifecycle section from a single sandboxed file handle (os.Root +
// reader/writer/lock trio) to a directory tree of databases, views, and
// their index engines — and lock.go/lock_unix.go/lock_windows.go's single
// process-wide advisory lock to per-view in-process locking (§5), since
// george coordinates many independent views rather than one file.
package george

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds engine-wide configuration, mirroring the teacher's
// Config{HashAlgorithm, ReadBuffer, MaxRecordSize, SyncWrites} and adding
// the two documented seams for the page-cache and RPC-dispatch
// collaborators (§5/§6 of SPEC_FULL.md). Neither of those two fields
// causes the core to spawn anything itself; they exist so an embedding
// binary has somewhere canonical to read the intended sizing from.
type Config struct {
	HashAlgorithm  HashAlgorithm // default algorithm for string-keyed indexes
	ReadBuffer     int           // advisory read buffer size hint
	MaxRecordSize  int           // advisory maximum single record size
	SyncWrites     bool          // fsync the view content log after every commit
	PageCacheTTL   time.Duration // seam for a Cache implementation (cache.go)
	WorkerPoolSize int           // seam for an RPC dispatcher (rpc.go)
	Logger         *slog.Logger  // used only for maintenance operations (ArchiveView, Compact)
	Cache          Cache         // page-cache collaborator; defaults to an in-process memoryCache
}

func (c *Config) applyDefaults() {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.ReadBuffer == 0 {
		c.ReadBuffer = 64 * 1024
	}
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = 16 * 1024 * 1024
	}
	if c.PageCacheTTL == 0 {
		c.PageCacheTTL = 5 * time.Minute
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Open opens (or creates) a george store rooted at dir, reconstructing
// every database/view/index already on disk.
func Open(dir string, cfg Config) (*Engine, error) {
	cfg.applyDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	cache := cfg.Cache
	if cache == nil {
		cache = newMemoryCache(cfg.PageCacheTTL)
	}
	e := &Engine{cfg: cfg, root: dir, cache: cache, dbs: map[string]*database{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dbDir := filepath.Join(dir, entry.Name())
		metaPath := filepath.Join(dbDir, "db.meta")
		if _, err := os.Stat(metaPath); err != nil {
			continue
		}
		dbh, err := reopenDatabase(dbDir, metaPath)
		if err != nil {
			return nil, err
		}
		e.dbs[entry.Name()] = dbh
	}

	return e, nil
}

func reopenDatabase(dbDir, metaPath string) (*database, error) {
	meta, err := openPagedFile(metaPath, dbMetaMagic)
	if err != nil {
		return nil, err
	}
	var desc DatabaseDescriptor
	if err := meta.decodeExtra(&desc); err != nil {
		meta.close()
		return nil, fmt.Errorf("%w: database descriptor: %v", ErrCorrupt, err)
	}

	dbh := &database{desc: desc, dir: dbDir, meta: meta, views: map[string]*View{}}
	for _, viewName := range desc.Views {
		v, err := reopenView(filepath.Join(dbDir, viewName))
		if err != nil {
			return nil, err
		}
		dbh.views[viewName] = v
	}
	return dbh, nil
}

func reopenView(dir string) (*View, error) {
	meta, err := openPagedFile(filepath.Join(dir, "view.meta"), viewMetaMagic)
	if err != nil {
		return nil, err
	}
	var desc ViewDescriptor
	if err := meta.decodeExtra(&desc); err != nil {
		meta.close()
		return nil, fmt.Errorf("%w: view descriptor: %v", ErrCorrupt, err)
	}

	version, err := currentContentVersion(dir)
	if err != nil {
		meta.close()
		return nil, err
	}
	log, err := openViewLog(dir, version)
	if err != nil {
		meta.close()
		return nil, err
	}

	v := &View{desc: desc, dir: dir, meta: meta, log: log, indexes: map[string]indexEngine{}}
	for _, id := range desc.Indexes {
		idxPath := filepath.Join(dir, "index", id.Name+".idx")
		recPath := filepath.Join(dir, "record", id.Name+".rec")

		var eng indexEngine
		var oerr error
		switch id.EngineKind {
		case "sequence":
			eng, oerr = openSequenceIndex(idxPath, id.KeyType, log)
		default:
			eng, oerr = openDiskIndex(idxPath, recPath, id.Unique, id.KeyType, id.HashAlgorithm, fieldPathForIndex(id.Name), log)
		}
		if oerr != nil {
			return nil, oerr
		}
		v.indexes[id.Name] = eng
	}
	return v, nil
}

// currentContentVersion finds the highest "content.v<N>" file directly in
// dir (archived versions live one level down, under archive/<N>/, and are
// never the current version).
func currentContentVersion(dir string) (uint16, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	var version uint16 = 1
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "content.v") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "content.v"))
		if err != nil {
			continue
		}
		if uint16(n) > version {
			version = uint16(n)
		}
	}
	return version, nil
}

// Close closes every open database, view, and index engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, dbh := range e.dbs {
		for _, v := range dbh.views {
			record(v.close())
		}
		record(dbh.meta.close())
	}
	return firstErr
}
