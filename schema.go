// Schema Directory (§4.8 / §2 item 8): the Database/View/Index descriptor
// arena. Generalises the teacher's header.go encode/decode-with-padding
// descriptor format — here every descriptor is itself a paged file whose
// fixed header carries the JSON descriptor as its Extra payload, so
// "create a database" and "create a view" reuse the exact same
// open/create/rewriteHeader machinery as every other on-disk structure in
// this package instead of inventing a second metadata format.
//
// Per the design notes (§9 of spec.md): cyclic references between
// database, view, and index are resolved by name, not by back-pointer —
// a View's descriptor names its owning Database, an Index's descriptor
// lives inside its owning View's descriptor. No strong back-pointer ever
// points the other way.
package george

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// indexEngine is the common contract both the Disk Index Tree and the
// Sequence Index satisfy. Selector and the Put/Get/Remove operations
// never need to know which concrete engine backs a given index. docKey
// identifies the document a stagePut/stageDel call acts on, independent
// of userKey: for the primary/increment index and any unique index the
// two always coincide, but a non-unique field-keyed secondary index can
// have many documents sharing one userKey (field value), and only docKey
// (the document's own primary key) tells them apart.
type indexEngine interface {
	close() error
	get(userKey UserKey) ([]byte, error)
	stagePut(seed *Seed, userKey, docKey UserKey, force bool) error
	stageDel(seed *Seed, userKey, docKey UserKey) error
	rangeScan(ascending bool, start, end HashKey, visit func(h HashKey, e RecordEntry) (bool, error)) error
}

// IndexDescriptor is the persisted shape of one index within a view.
type IndexDescriptor struct {
	Name          string        `json:"name"`
	Unique        bool          `json:"unique"`
	KeyType       KeyType       `json:"key_type"`
	HashAlgorithm HashAlgorithm `json:"hash_algorithm"`
	EngineKind    string        `json:"engine_kind"` // "disk" or "sequence"
}

// ViewDescriptor is the persisted shape of a view.
type ViewDescriptor struct {
	Name             string            `json:"name"`
	Database         string            `json:"database"`
	Increment        bool              `json:"increment"`
	DefaultKeyType   KeyType           `json:"default_key_type"`
	Indexes          []IndexDescriptor `json:"indexes"`
	IncrementCounter uint64            `json:"increment_counter"`
}

// DatabaseDescriptor is the persisted shape of a database.
type DatabaseDescriptor struct {
	Name           string   `json:"name"`
	DefaultKeyType KeyType  `json:"default_key_type"`
	Views          []string `json:"views"`
}

const viewMetaMagic = "GEOR-VMETA"
const dbMetaMagic = "GEOR-DMETA"

// primaryIndexName is the index every CreateView provisions implicitly
// and every Put/Set/Remove without an explicit index name targets.
const primaryIndexName = "_primary"

// incrementIndexName is the built-in Sequence-engine index backing a
// view's auto-increment counter (§4.6 step 3 / S3).
const incrementIndexName = "__increment"

// View is the live, open handle for a ViewDescriptor: its content log,
// its open index engines, its auto-increment counter, and the per-view
// writer lock §5 requires content-log append, record-file append, and
// index-tree page append to share.
type View struct {
	desc ViewDescriptor
	dir  string
	meta *pagedFile

	writerLock sync.Mutex // held across a Seed commit's steps 1-2 (§5)

	log     *ViewLog
	indexes map[string]indexEngine

	incMu sync.Mutex
}

type database struct {
	desc DatabaseDescriptor
	dir  string
	meta *pagedFile

	mu    sync.Mutex
	views map[string]*View
}

// Engine is the top-level handle for an open george store: the Schema
// Directory plus every currently-open View.
type Engine struct {
	cfg   Config
	root  string
	cache Cache

	mu  sync.RWMutex
	dbs map[string]*database
}

func databaseDir(root, name string) string { return filepath.Join(root, name) }
func viewDir(root, db, view string) string { return filepath.Join(root, db, view) }

// CreateDatabase creates a new database directory and descriptor file.
func (e *Engine) CreateDatabase(name string, defaultKeyType KeyType) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.dbs[name]; ok {
		return fmt.Errorf("%w: database %q", ErrAlreadyExists, name)
	}
	dir := databaseDir(e.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	desc := DatabaseDescriptor{Name: name, DefaultKeyType: defaultKeyType}
	meta, err := createPagedFile(filepath.Join(dir, "db.meta"), dbMetaMagic, "database", desc)
	if err != nil {
		return err
	}
	e.dbs[name] = &database{desc: desc, dir: dir, meta: meta, views: map[string]*View{}}
	return nil
}

// CreateView creates a new view within database db. When defaultKeyType
// is KeyTypeNone, the view inherits the database's default key type
// (§5 of SPEC_FULL.md's supplemented features).
func (e *Engine) CreateView(dbName, viewName string, increment bool, defaultKeyType KeyType) error {
	e.mu.Lock()
	dbh, ok := e.dbs[dbName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: database %q", ErrNoSuchDatabase, dbName)
	}

	dbh.mu.Lock()
	defer dbh.mu.Unlock()
	if _, ok := dbh.views[viewName]; ok {
		return fmt.Errorf("%w: view %q", ErrAlreadyExists, viewName)
	}

	if defaultKeyType == KeyTypeNone {
		defaultKeyType = dbh.desc.DefaultKeyType
	}

	dir := viewDir(e.root, dbName, viewName)
	for _, sub := range []string{"record", "index"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrIoFailure, err)
		}
	}

	desc := ViewDescriptor{Name: viewName, Database: dbName, Increment: increment, DefaultKeyType: defaultKeyType}
	meta, err := createPagedFile(filepath.Join(dir, "view.meta"), viewMetaMagic, "view", desc)
	if err != nil {
		return err
	}
	log, err := createViewLog(dir)
	if err != nil {
		meta.close()
		return err
	}

	v := &View{desc: desc, dir: dir, meta: meta, log: log, indexes: map[string]indexEngine{}}

	if err := e.createIndexLocked(v, primaryIndexName, true, defaultKeyType, e.cfg.HashAlgorithm); err != nil {
		log.close()
		meta.close()
		return err
	}
	if increment {
		if err := e.createIndexLocked(v, incrementIndexName, true, KeyTypeUInt, AlgXXHash3); err != nil {
			log.close()
			meta.close()
			return err
		}
	}

	dbh.desc.Views = append(dbh.desc.Views, viewName)
	if err := dbh.meta.rewriteHeader(dbh.desc); err != nil {
		return err
	}
	dbh.views[viewName] = v
	return nil
}

// CreateIndex adds an index to an already-open view and persists its
// descriptor. The concrete engine is chosen automatically: a unique
// numeric index is backed by the Sequence engine (§4.5 — practical only
// for bounded, densely-populated hash spaces like small integers); every
// other case (strings, or a non-unique numeric index) is backed by the
// Disk Index Tree.
func (e *Engine) CreateIndex(dbName, viewName, indexName string, unique bool, kt KeyType, alg HashAlgorithm) error {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return err
	}
	if kt == KeyTypeNone {
		kt = v.desc.DefaultKeyType
	}
	if alg == 0 {
		alg = e.cfg.HashAlgorithm
	}
	return e.createIndexLocked(v, indexName, unique, kt, alg)
}

func (e *Engine) createIndexLocked(v *View, name string, unique bool, kt KeyType, alg HashAlgorithm) error {
	if _, ok := v.indexes[name]; ok {
		return fmt.Errorf("%w: index %q", ErrAlreadyExists, name)
	}

	engineKind := "disk"
	if unique && (kt == KeyTypeUInt || kt == KeyTypeInt) {
		engineKind = "sequence"
	}

	idxPath := filepath.Join(v.dir, "index", name+".idx")
	recPath := filepath.Join(v.dir, "record", name+".rec")

	var eng indexEngine
	var err error
	switch engineKind {
	case "sequence":
		eng, err = createSequenceIndex(idxPath, kt, v.log)
	default:
		eng, err = createDiskIndex(idxPath, recPath, unique, kt, alg, fieldPathForIndex(name), v.log)
	}
	if err != nil {
		return err
	}

	v.indexes[name] = eng
	v.desc.Indexes = append(v.desc.Indexes, IndexDescriptor{Name: name, Unique: unique, KeyType: kt, HashAlgorithm: alg, EngineKind: engineKind})
	return v.meta.rewriteHeader(v.desc)
}

// fieldPathForIndex returns the document field an index is keyed by: every
// index but the two built-ins is named after, and populated from, the
// document field of the same name (§6's get_by_index contract — an index
// named "age" is looked up by the value of a record's "age" field, not by
// its primary key).
func fieldPathForIndex(name string) string {
	if name == primaryIndexName || name == incrementIndexName {
		return ""
	}
	return name
}

// hasSecondaryIndexes reports whether v carries any index beyond the
// primary and the auto-increment sequence, i.e. whether a write needs to
// derive and stage field-keyed entries at all.
func hasSecondaryIndexes(v *View) bool {
	for name := range v.indexes {
		if name != primaryIndexName && name != incrementIndexName {
			return true
		}
	}
	return false
}

// openView returns the live handle for an already-created view. Its
// on-disk files are already open: Open reopens every view on disk, and
// CreateView opens the ones it creates.
func (e *Engine) openView(dbName, viewName string) (*View, error) {
	e.mu.RLock()
	dbh, ok := e.dbs[dbName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: database %q", ErrNoSuchDatabase, dbName)
	}

	dbh.mu.Lock()
	defer dbh.mu.Unlock()
	v, ok := dbh.views[viewName]
	if !ok {
		return nil, fmt.Errorf("%w: view %q", ErrNoSuchView, viewName)
	}
	return v, nil
}

func (v *View) engine(name string) (indexEngine, error) {
	eng, ok := v.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %q", ErrNoSuchIndex, name)
	}
	return eng, nil
}

// nextIncrement atomically allocates the next auto-increment value and
// persists the counter in the view's descriptor.
func (v *View) nextIncrement() (uint64, error) {
	v.incMu.Lock()
	defer v.incMu.Unlock()
	v.desc.IncrementCounter++
	if err := v.meta.rewriteHeader(v.desc); err != nil {
		return 0, err
	}
	return v.desc.IncrementCounter, nil
}

func (v *View) close() error {
	var firstErr error
	for _, eng := range v.indexes {
		if err := eng.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := v.log.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := v.meta.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ListDatabases returns every created database's name.
func (e *Engine) ListDatabases() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.dbs))
	for name := range e.dbs {
		out = append(out, name)
	}
	return out
}

// ListViews returns every view's name within database dbName.
func (e *Engine) ListViews(dbName string) ([]string, error) {
	e.mu.RLock()
	dbh, ok := e.dbs[dbName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: database %q", ErrNoSuchDatabase, dbName)
	}
	dbh.mu.Lock()
	defer dbh.mu.Unlock()
	out := make([]string, 0, len(dbh.views))
	for name := range dbh.views {
		out = append(out, name)
	}
	return out, nil
}

// ListIndexes returns the index descriptors of the given view.
func (e *Engine) ListIndexes(dbName, viewName string) ([]IndexDescriptor, error) {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return nil, err
	}
	return v.desc.Indexes, nil
}
