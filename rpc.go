// RPC-surface collaborator (§6): a pure contract, no wire codec, no TLS,
// no transport. The core implements every method an RPC dispatcher would
// need to hand off a request to, but never listens on a socket itself —
// that boundary belongs to the hosting binary, per §6's "exit codes and
// environment are owned by the hosting binary, not the core".
package george

import "iter"

// StorageService is the surface a gRPC (or any other transport) server
// would implement by delegating each method straight to an *Engine. It
// names exactly the verbs §6 lists: "the core implements
// put/set/get/get_by_index/remove/select/delete and the metadata CRUD",
// plus the resource-CRUD and archive/record/records verbs the per-
// resource services (User|Page|Database|View|Index|Disk|Memory) expose.
//
// No implementation of this interface lives in this package; *Engine
// satisfies it structurally (Go's implicit interface satisfaction) once
// its method set is in place, so a transport layer can depend on
// StorageService without importing george's concrete types beyond the
// ones already in its public API.
type StorageService interface {
	CreateDatabase(name string, defaultKeyType KeyType) error
	ListDatabases() []string

	CreateView(dbName, viewName string, increment bool, defaultKeyType KeyType) error
	ListViews(dbName string) ([]string, error)
	ArchiveView(dbName, viewName string) (ArchiveInfo, error)
	ViewRecord(dbName, viewName string, version uint16) (ArchiveInfo, error)
	Records(dbName, viewName string) iter.Seq2[Record, error]
	Compact(dbName, viewName string) error

	CreateIndex(dbName, viewName, indexName string, unique bool, kt KeyType, alg HashAlgorithm) error
	ListIndexes(dbName, viewName string) ([]IndexDescriptor, error)

	Put(dbName, viewName string, userKey UserKey, value []byte) error
	Set(dbName, viewName string, userKey UserKey, value []byte) error
	Get(dbName, viewName string, userKey UserKey) ([]byte, error)
	GetByIndex(dbName, viewName, indexName string, userKey UserKey) ([]byte, error)
	Exists(dbName, viewName string, userKey UserKey) (bool, error)
	Remove(dbName, viewName string, userKey UserKey) error

	Select(dbName, viewName string, sel Selector) ([]Hit, error)
	SelectAndDelete(dbName, viewName string, sel Selector) ([]Hit, error)
}

var _ StorageService = (*Engine)(nil)
