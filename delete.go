// Remove: delete-by-key through the primary index, also unlinking the
// view's auto-increment slot when the deleted key carried one (§4.6 step
// 3, scenario S3). Unlike Put/Set, a delete never needs a new content-log
// frame — every staged policy is applied directly via Seed.Apply.
package george

import "fmt"

// Remove deletes userKey from view's primary index.
func (e *Engine) Remove(dbName, viewName string, userKey UserKey) error {
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

	var seq uint64
	var value []byte
	needFrame := v.desc.Increment || hasSecondaryIndexes(v)
	if needFrame {
		version, length, offset, found, err := locate(primary, userKey)
		if err != nil {
			return err
		}
		if found {
			_, v2, s, err := v.log.readFrame(version, length, offset)
			if err != nil {
				return err
			}
			seq = s
			value = v2
		}
	}

	seed := newSeed()
	if err := primary.stageDel(seed, userKey, userKey); err != nil {
		return err
	}

	if v.desc.Increment && seq != 0 {
		incEng, err := v.engine(incrementIndexName)
		if err != nil {
			return err
		}
		incKey := UserKey(fmt.Appendf(nil, "%d", seq))
		if err := incEng.stageDel(seed, incKey, incKey); err != nil && !isNotFound(err) {
			return err
		}
	}

	if value != nil {
		for name, eng := range v.indexes {
			if name == primaryIndexName || name == incrementIndexName {
				continue
			}
			fv, ok := decodeIndexField(value, name)
			if !ok {
				continue
			}
			if err := eng.stageDel(seed, fv, userKey); err != nil && !isNotFound(err) {
				return err
			}
		}
	}

	if seed.empty() {
		return nil
	}
	return seed.Apply()
}

// locate finds the (version,len,offset) a user key currently resolves to
// under eng, without exposing the engine-internal chain-walk machinery to
// callers outside this package. For a Disk engine it uses diskIndex.locate
// directly rather than rangeScan(h, h): rangeScan treats start==end==0 as
// "unbounded" per §4.4's scan contract, which would misfire for a user key
// whose hash happens to be exactly 0. A view's primary index is Sequence-
// backed whenever it's unique and its key type is numeric (schema.go's
// createIndexLocked), so locate must also know how to read a Sequence
// slot directly — otherwise Remove and Set would silently skip their
// increment/secondary-index cleanup on any such view.
func locate(eng indexEngine, userKey UserKey) (version uint16, length uint32, offset int64, found bool, err error) {
	switch e := eng.(type) {
	case *diskIndex:
		rec, hit, lerr := e.locate(userKey)
		if lerr != nil || !hit {
			return 0, 0, 0, false, lerr
		}
		return rec.ViewVersion, rec.Len, int64(rec.Offset), true, nil
	case *sequenceIndex:
		h, herr := HashUserKey(userKey, e.keyType, AlgXXHash3)
		if herr != nil {
			return 0, 0, 0, false, herr
		}
		slotVersion, slotLength, slotOffset, empty, serr := e.readSlot(h)
		if serr != nil || empty {
			return 0, 0, 0, false, serr
		}
		return slotVersion, slotLength, int64(slotOffset), true, nil
	default:
		return 0, 0, 0, false, nil
	}
}
