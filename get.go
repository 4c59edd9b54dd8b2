// Point-read operations: Get, GetByIndex, Exists.
package george

// Get retrieves userKey's current value from view (dbName, viewName)
// under its primary index ("_primary"), the index every Put/Set writes
// through by default.
func (e *Engine) Get(dbName, viewName string, userKey UserKey) ([]byte, error) {
	return e.GetByIndex(dbName, viewName, primaryIndexName, userKey)
}

// GetByIndex retrieves userKey's current value from a named index of the
// given view — the §6 "get_by_index" verb.
func (e *Engine) GetByIndex(dbName, viewName, indexName string, userKey UserKey) ([]byte, error) {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return nil, err
	}
	eng, err := v.engine(indexName)
	if err != nil {
		return nil, err
	}
	return eng.get(userKey)
}

// Exists reports whether userKey resolves under view's primary index.
func (e *Engine) Exists(dbName, viewName string, userKey UserKey) (bool, error) {
	_, err := e.Get(dbName, viewName, userKey)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}
