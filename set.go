// Write operations: Put, Set, and the per-index staging that feeds a
// single shared Seed (§4.6). Generalises the teacher's write.go, whose
// append(record, idx) wrote one record plus one sparse index entry in a
// single call — george's Seed can gather policies from the primary index
// *and* the increment sequence in the same pass, so both reference the
// exact same content-log frame from one append.
package george

import (
	"bytes"
	"fmt"
)

// Put inserts userKey into view's primary index, failing with
// AlreadyExists if the key is already live (force=false). Set is Put with
// force=true: it always succeeds, overwriting any existing value.
func (e *Engine) Put(dbName, viewName string, userKey UserKey, value []byte) error {
	return e.put(dbName, viewName, userKey, value, false)
}

func (e *Engine) Set(dbName, viewName string, userKey UserKey, value []byte) error {
	return e.put(dbName, viewName, userKey, value, true)
}

func (e *Engine) put(dbName, viewName string, userKey UserKey, value []byte, force bool) error {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return err
	}
	primary, err := v.engine(primaryIndexName)
	if err != nil {
		return err
	}

	v.writerLock.Lock()
	defer v.writerLock.Unlock()

	// Look up any prior frame for userKey before staging anything: a
	// force-overwrite that changes a secondary-indexed field's value
	// leaves the old field value's chain entry stale unless it is
	// unlinked too. Staged policies aren't applied until Commit, so
	// reading the old frame now is still safe.
	var oldValue []byte
	if hasSecondaryIndexes(v) {
		oldVersion, oldLength, oldOffset, hadPrior, lerr := locate(primary, userKey)
		if lerr != nil {
			return lerr
		}
		if hadPrior {
			if _, frameValue, _, rerr := v.log.readFrame(oldVersion, oldLength, oldOffset); rerr == nil {
				oldValue = frameValue
			}
		}
	}

	seed := newSeed()
	if err := primary.stagePut(seed, userKey, userKey, force); err != nil {
		return err
	}

	if v.desc.Increment {
		incEng, err := v.engine(incrementIndexName)
		if err != nil {
			return err
		}
		// The counter itself is advanced only after Commit succeeds; the
		// writer lock held here keeps this value unclaimed until then.
		v.incMu.Lock()
		incValue := v.desc.IncrementCounter + 1
		v.incMu.Unlock()
		incKey := UserKey(fmt.Appendf(nil, "%d", incValue))
		if err := incEng.stagePut(seed, incKey, incKey, true); err != nil {
			return err
		}
		seed.setSeq(incValue)
	}

	for name, eng := range v.indexes {
		if name == primaryIndexName || name == incrementIndexName {
			continue
		}
		if oldValue != nil {
			if oldKey, ok := decodeIndexField(oldValue, name); ok {
				newKey, unchanged := decodeIndexField(value, name)
				if !unchanged || !bytes.Equal([]byte(oldKey), []byte(newKey)) {
					if err := eng.stageDel(seed, oldKey, userKey); err != nil && !isNotFound(err) {
						return err
					}
				}
			}
		}
		fv, ok := decodeIndexField(value, name)
		if !ok {
			continue
		}
		if err := eng.stagePut(seed, fv, userKey, force); err != nil {
			return err
		}
	}

	if seed.empty() {
		return nil
	}
	if err := seed.Commit(v.log, userKey, value); err != nil {
		return err
	}
	if v.desc.Increment {
		if _, err := v.nextIncrement(); err != nil {
			return err
		}
	}
	if e.cfg.SyncWrites {
		return v.log.current.sync()
	}
	return nil
}
