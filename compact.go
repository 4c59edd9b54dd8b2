// Compact: the compacting pass spec.md's Open Question calls for — a
// rewrite of an index's live entries into a fresh file, reclaiming the
// `20 * #deletions` bytes per view that the non-unique collision-chain
// delete policy (§4.3/§4.4) leaves behind by design until this runs.
//
// Adapted from the teacher's repair.go temp-file-then-rename discipline:
// heavy work (the full live-entry scan and rebuild) happens against a
// "<name>.tmp" pair of files while the view's existing files stay live
// and readable, then both are renamed into place under the view's writer
// lock. Unlike the teacher's Repair, which reorganises the single
// combined database file in place, george's index files and record files
// are already split per index, so compaction only ever rewrites one
// index's two files at a time; it never touches the view content log.
package george

import (
	"fmt"
	"os"
	"path/filepath"
)

// Compact runs View.Compact against the named view, logging its outcome
// the same way ArchiveView does (§2 of SPEC_FULL.md: the Logger field is
// consulted only for maintenance operations, never the read/write hot
// path).
func (e *Engine) Compact(dbName, viewName string) error {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return err
	}
	if err := v.Compact(); err != nil {
		return err
	}
	e.cfg.Logger.Info("view compacted", "database", dbName, "view", viewName)
	return nil
}

// Compact rebuilds every disk-engine index of the view from its current
// live entries, discarding collision-chain nodes orphaned by prior
// non-unique deletes. Sequence-engine indexes have no collision chains
// (their addressing is structural, not chained — see sequence.go) and so
// have nothing to reclaim; Compact leaves them untouched.
func (v *View) Compact() error {
	v.writerLock.Lock()
	defer v.writerLock.Unlock()

	for name, eng := range v.indexes {
		disk, ok := eng.(*diskIndex)
		if !ok {
			continue
		}
		fresh, err := compactDiskIndex(v, name, disk)
		if err != nil {
			return fmt.Errorf("compact index %q: %w", name, err)
		}
		v.indexes[name] = fresh
	}
	return nil
}

// compactDiskIndex scans idx's live entries (exactly what an unbounded
// rangeScan already visits: skipped slots contribute nothing, and a
// collision-chain's unreachable, zeroed-out nodes were never materialised
// into a RecordEntry a visit callback sees), writes them into a fresh
// pair of index/record files, then swaps the originals for the rebuilt
// ones.
func compactDiskIndex(v *View, name string, idx *diskIndex) (*diskIndex, error) {
	type liveEntry struct {
		key    UserKey // re-insertion key: the field value for a secondary index, the document key otherwise
		docKey UserKey // the document's own primary key, for chainMatch's non-unique-secondary identity check
		e      RecordEntry
	}
	var live []liveEntry
	err := idx.rangeScan(true, 0, 0, func(h HashKey, e RecordEntry) (bool, error) {
		key, value, rerr := idx.vl.read(e.ViewVersion, e.Len, e.Offset)
		if rerr != nil {
			return true, nil // frame vanished from an archived/pruned version: drop it
		}
		reKey := UserKey(key)
		if idx.fieldPath != "" {
			fv, ok := decodeIndexField(value, idx.fieldPath)
			if !ok {
				return true, nil // indexed field no longer present: drop this stale entry
			}
			reKey = fv
		}
		live = append(live, liveEntry{
			key:    append(UserKey(nil), reKey...),
			docKey: append(UserKey(nil), key...),
			e:      e,
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	idxPath := filepath.Join(v.dir, "index", name+".idx")
	recPath := filepath.Join(v.dir, "record", name+".rec")
	tmpIdxPath := idxPath + ".tmp"
	tmpRecPath := recPath + ".tmp"
	os.Remove(tmpIdxPath)
	os.Remove(tmpRecPath)

	fresh, err := createDiskIndex(tmpIdxPath, tmpRecPath, idx.unique, idx.keyType, idx.hashAlg, idx.fieldPath, idx.vl)
	if err != nil {
		return nil, err
	}

	for _, le := range live {
		seed := newSeed()
		if err := fresh.stagePut(seed, le.key, le.docKey, true); err != nil {
			fresh.close()
			return nil, err
		}
		if err := seed.ApplyWithFrame(le.e.ViewVersion, le.e.Len, int64(le.e.Offset)); err != nil {
			fresh.close()
			return nil, err
		}
	}
	if err := fresh.close(); err != nil {
		return nil, err
	}
	if err := idx.close(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpIdxPath, idxPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	if err := os.Rename(tmpRecPath, recPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	return openDiskIndex(idxPath, recPath, idx.unique, idx.keyType, idx.hashAlg, idx.fieldPath, idx.vl)
}
