// Disk Index Tree (§4.4): a fixed-depth hash trie over the 64-bit hash of
// the user key, generalising the teacher's scan.go binary-search-over-
// sorted-section idea into a materialised seven-level tree instead of a
// linear sorted scan — george's key space (arbitrary 64-bit hashes) has no
// natural sort order to binary-search over the way the teacher's
// monotonic integer IDs do, so each level narrows the search by indexing
// directly into a fixed-size page instead of bisecting.
package george

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	diskSlotsPerPage  = 1170
	diskInnerSlotSize = 14 // child:u64 | record_offset:u48
	diskLeafSlotSize  = 6  // record_offset:u48
	diskInnerPageSize = diskSlotsPerPage * diskInnerSlotSize
	diskLeafPageSize  = diskSlotsPerPage * diskLeafSlotSize
	diskLevels        = 7 // levels 0..5 inner, level 6 leaf
)

const diskIndexMagic = "GEOR-DISK"

// diskDistances[i] is the place value of level i: 1170^(6-i). Computed
// once at init rather than written out as seven magic constants.
var diskDistances = func() [diskLevels]uint64 {
	var d [diskLevels]uint64
	v := uint64(1)
	for i := diskLevels - 1; i >= 0; i-- {
		d[i] = v
		v *= diskSlotsPerPage
	}
	return d
}()

// digitsOf decomposes a 64-bit hash into its seven level-degrees. Because
// 1170^7 exceeds 2^64, this decomposition is a bijection: no two distinct
// hashes ever land on the same leaf slot, so a "collision chain" at a leaf
// is, in practice, a genuine 64-bit hash collision between different user
// keys (rare), not an artefact of the tree's own addressing.
func digitsOf(h HashKey) [diskLevels]int {
	var d [diskLevels]int
	for i := 0; i < diskLevels; i++ {
		d[i] = int((h / diskDistances[i]) % diskSlotsPerPage)
	}
	return d
}

type diskIndexExtra struct {
	Root int64 `json:"root"`
}

// diskIndex is the Disk Index Tree engine: one index file holding inner
// and leaf pages, paired with a record file holding the 20-byte entries
// the leaves point to.
type diskIndex struct {
	unique    bool
	keyType   KeyType
	hashAlg   HashAlgorithm
	fieldPath string // "" for the primary/increment index; else the document field this index is keyed by

	pf *pagedFile
	rf *RecordFile
	vl *ViewLog

	root  int64 // 0 until the first put materialises a root inner page
	bloom *bloomFilter
}

func createDiskIndex(idxPath, recPath string, unique bool, kt KeyType, alg HashAlgorithm, fieldPath string, vl *ViewLog) (*diskIndex, error) {
	pf, err := createPagedFile(idxPath, diskIndexMagic, "index-disk", diskIndexExtra{})
	if err != nil {
		return nil, err
	}
	rf, err := createRecordFile(recPath)
	if err != nil {
		pf.close()
		return nil, err
	}
	return &diskIndex{unique: unique, keyType: kt, hashAlg: alg, fieldPath: fieldPath, pf: pf, rf: rf, vl: vl, bloom: newBloomFilter()}, nil
}

func openDiskIndex(idxPath, recPath string, unique bool, kt KeyType, alg HashAlgorithm, fieldPath string, vl *ViewLog) (*diskIndex, error) {
	pf, err := openPagedFile(idxPath, diskIndexMagic)
	if err != nil {
		return nil, err
	}
	rf, err := openRecordFile(recPath)
	if err != nil {
		pf.close()
		return nil, err
	}
	var extra diskIndexExtra
	if err := pf.decodeExtra(&extra); err != nil {
		pf.close()
		rf.close()
		return nil, fmt.Errorf("%w: disk index extra: %v", ErrCorrupt, err)
	}
	// No bloom filter: one built from later puts alone would report every
	// key already on disk as definitely absent.
	return &diskIndex{unique: unique, keyType: kt, hashAlg: alg, fieldPath: fieldPath, pf: pf, rf: rf, vl: vl, root: extra.Root}, nil
}

// matchesFrame reports whether the frame read back from the content log for
// one candidate chain entry is the entry userKey actually refers to. The
// primary (and increment) index compares the frame's own stored key;
// a field-indexed secondary index instead decodes the frame's value as a
// document and compares the named field, since every index sharing one
// content-log frame must agree independently on what "the key" means here.
func (idx *diskIndex) matchesFrame(key, value []byte, userKey UserKey) bool {
	if idx.fieldPath == "" {
		return bytes.Equal(key, userKey)
	}
	fv, ok := decodeIndexField(value, idx.fieldPath)
	return ok && bytes.Equal(fv, userKey)
}

// chainMatch decides whether one chain entry is the entry a stagePut/
// stageDel call is acting on. For the primary/increment index, and for a
// unique field-keyed secondary index, that's still decided by matchesFrame:
// a unique index never lets two documents share a key (or field value), so
// value equality and document identity coincide. A non-unique field-keyed
// secondary index is different: many documents can legitimately share one
// field value, so userKey (the field value being inserted or removed) no
// longer identifies a single chain entry — only the document's own primary
// key, docKey, does.
func (idx *diskIndex) chainMatch(key, value []byte, userKey, docKey UserKey) bool {
	if idx.fieldPath != "" && !idx.unique {
		return bytes.Equal(key, docKey)
	}
	return idx.matchesFrame(key, value, userKey)
}

func (idx *diskIndex) close() error {
	if err := idx.rf.close(); err != nil {
		return err
	}
	return idx.pf.close()
}

func (idx *diskIndex) newInnerPage() (int64, error) {
	return idx.pf.append(make([]byte, diskInnerPageSize))
}

func (idx *diskIndex) newLeafPage() (int64, error) {
	return idx.pf.append(make([]byte, diskLeafPageSize))
}

func (idx *diskIndex) readInnerSlot(page int64, slot int) (child uint64, recOff uint64, err error) {
	buf, err := idx.pf.read(page+int64(slot)*diskInnerSlotSize, diskInnerSlotSize)
	if errors.Is(err, ErrIoFailure) {
		return 0, 0, err
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%w: inner slot: %v", ErrCorrupt, err)
	}
	for i := 0; i < 8; i++ {
		child = child<<8 | uint64(buf[i])
	}
	return child, getUint48(buf[8:14]), nil
}

func (idx *diskIndex) writeInnerSlot(page int64, slot int, child uint64, recOff uint64) error {
	buf := make([]byte, diskInnerSlotSize)
	for i := 0; i < 8; i++ {
		buf[i] = byte(child >> (8 * (7 - i)))
	}
	putUint48(buf[8:14], recOff)
	return idx.pf.write(page+int64(slot)*diskInnerSlotSize, buf)
}

func (idx *diskIndex) readLeafSlot(page int64, slot int) (uint64, error) {
	buf, err := idx.pf.read(page+int64(slot)*diskLeafSlotSize, diskLeafSlotSize)
	if errors.Is(err, ErrIoFailure) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: leaf slot: %v", ErrCorrupt, err)
	}
	return getUint48(buf), nil
}

func (idx *diskIndex) writeLeafSlot(page int64, slot int, recOff uint64) error {
	buf := make([]byte, diskLeafSlotSize)
	putUint48(buf, recOff)
	return idx.pf.write(page+int64(slot)*diskLeafSlotSize, buf)
}

// get walks the tree deterministically and then the terminal chain,
// comparing decoded user keys (§4.4 get contract).
func (idx *diskIndex) get(userKey UserKey) ([]byte, error) {
	h, err := HashUserKey(userKey, idx.keyType, idx.hashAlg)
	if err != nil {
		return nil, err
	}
	if idx.bloom != nil && !idx.bloom.Contains(h) {
		return nil, ErrNotFound
	}
	if idx.root == 0 {
		return nil, ErrNotFound
	}

	digits := digitsOf(h)
	page := idx.root
	for level := 0; level < diskLevels-1; level++ {
		child, _, err := idx.readInnerSlot(page, digits[level])
		if err != nil {
			return nil, err
		}
		if child == 0 {
			return nil, ErrNotFound
		}
		page = int64(child)
	}

	recOff, err := idx.readLeafSlot(page, digits[diskLevels-1])
	if err != nil {
		return nil, err
	}
	if recOff == 0 {
		return nil, ErrNotFound
	}

	offset := int64(recOff)
	for offset != 0 {
		e, err := idx.rf.load(offset)
		if err != nil {
			return nil, err
		}
		if !e.empty() {
			k, v, rerr := idx.vl.read(e.ViewVersion, e.Len, e.Offset)
			if rerr == nil && idx.matchesFrame(k, v, userKey) {
				return v, nil
			}
		}
		offset = int64(e.Next)
	}
	return nil, ErrNotFound
}

// locate walks the tree and terminal chain exactly as get does, but
// returns the matching RecordEntry itself rather than its decoded value.
// Used by Remove to find a record's frame before deleting it, so it can
// inspect the frame's auto-increment Seq (§4.6 step 3).
func (idx *diskIndex) locate(userKey UserKey) (RecordEntry, bool, error) {
	h, err := HashUserKey(userKey, idx.keyType, idx.hashAlg)
	if err != nil {
		return RecordEntry{}, false, err
	}
	if idx.root == 0 {
		return RecordEntry{}, false, nil
	}

	digits := digitsOf(h)
	page := idx.root
	for level := 0; level < diskLevels-1; level++ {
		child, _, err := idx.readInnerSlot(page, digits[level])
		if err != nil {
			return RecordEntry{}, false, err
		}
		if child == 0 {
			return RecordEntry{}, false, nil
		}
		page = int64(child)
	}

	recOff, err := idx.readLeafSlot(page, digits[diskLevels-1])
	if err != nil {
		return RecordEntry{}, false, err
	}
	if recOff == 0 {
		return RecordEntry{}, false, nil
	}

	offset := int64(recOff)
	for offset != 0 {
		e, err := idx.rf.load(offset)
		if err != nil {
			return RecordEntry{}, false, err
		}
		if !e.empty() {
			k, v, rerr := idx.vl.read(e.ViewVersion, e.Len, e.Offset)
			if rerr == nil && idx.matchesFrame(k, v, userKey) {
				return e, true, nil
			}
		}
		offset = int64(e.Next)
	}
	return RecordEntry{}, false, nil
}

// stagePut resolves the per-level degree chain, materialising missing
// pages, and stages a single frame-dependent Put policy at the terminal
// record entry (§4.4). It performs structural work (page materialisation,
// allocation, chain linking) eagerly — none of it depends on the content
// frame that hasn't been written yet — and defers only the entry's own
// (version,len,offset) fields to the seed's commit. docKey is the
// document's own primary key, used by chainMatch to tell two documents
// sharing one field value apart in a non-unique secondary index; callers
// indexing through the primary/increment index, or a unique index, may
// pass the same value as userKey since chainMatch ignores docKey there.
func (idx *diskIndex) stagePut(seed *Seed, userKey, docKey UserKey, force bool) error {
	h, err := HashUserKey(userKey, idx.keyType, idx.hashAlg)
	if err != nil {
		return err
	}
	digits := digitsOf(h)

	if idx.root == 0 {
		p, err := idx.newInnerPage()
		if err != nil {
			return err
		}
		idx.root = p
		if err := idx.pf.rewriteHeader(diskIndexExtra{Root: idx.root}); err != nil {
			return err
		}
	}

	page := idx.root
	for level := 0; level < diskLevels-1; level++ {
		child, _, err := idx.readInnerSlot(page, digits[level])
		if err != nil {
			return err
		}
		if child == 0 {
			var newPage int64
			if level == diskLevels-2 {
				newPage, err = idx.newLeafPage()
			} else {
				newPage, err = idx.newInnerPage()
			}
			if err != nil {
				return err
			}
			if err := idx.writeInnerSlot(page, digits[level], uint64(newPage), 0); err != nil {
				return err
			}
			child = uint64(newPage)
		}
		page = int64(child)
	}

	leafPage := page
	leafSlot := digits[diskLevels-1]
	recOff, err := idx.readLeafSlot(leafPage, leafSlot)
	if err != nil {
		return err
	}

	if recOff == 0 {
		newOff, err := idx.rf.allocate()
		if err != nil {
			return err
		}
		if err := idx.writeLeafSlot(leafPage, leafSlot, uint64(newOff)); err != nil {
			return err
		}
		idx.stageFrameWrite(seed, newOff, 0)
		if idx.bloom != nil {
			idx.bloom.Add(h)
		}
		return nil
	}

	offset := int64(recOff)
	var tail int64
	for {
		e, err := idx.rf.load(offset)
		if err != nil {
			return err
		}
		if !e.empty() {
			k, v, rerr := idx.vl.read(e.ViewVersion, e.Len, e.Offset)
			if rerr == nil && idx.chainMatch(k, v, userKey, docKey) {
				if idx.unique && !force {
					return ErrAlreadyExists
				}
				idx.stageFrameWrite(seed, offset, e.Next)
				return nil
			}
		}
		if e.Next == 0 {
			tail = offset
			break
		}
		offset = int64(e.Next)
	}

	newOff, err := idx.rf.allocate()
	if err != nil {
		return err
	}
	if err := idx.rf.storeNext(tail, uint64(newOff)); err != nil {
		return err
	}
	idx.stageFrameWrite(seed, newOff, 0)
	if idx.bloom != nil {
		idx.bloom.Add(h)
	}
	return nil
}

// stageFrameWrite stages the single Put policy that every put resolves
// to: write a 20-byte entry at offset, preserving next (already correct),
// with version/len/offset filled in by the seed at commit time.
func (idx *diskIndex) stageFrameWrite(seed *Seed, offset int64, next uint64) {
	buf := make([]byte, recordEntrySize)
	for i := 0; i < 8; i++ {
		buf[12+i] = byte(next >> (8 * (7 - i)))
	}
	seed.stagePut(true, buf, func(b []byte) error {
		return idx.rf.storeRaw(offset, b)
	})
}

// stageDel locates userKey and stages its deletion per §4.3/§4.4's two
// policies (zero the slot for a unique index, collapse-copy for
// non-unique). docKey carries the same document-identity role it does in
// stagePut: for a non-unique field-keyed index, it picks this document's
// own chain entry out from others sharing the same field value.
func (idx *diskIndex) stageDel(seed *Seed, userKey, docKey UserKey) error {
	h, err := HashUserKey(userKey, idx.keyType, idx.hashAlg)
	if err != nil {
		return err
	}
	if idx.root == 0 {
		return ErrNotFound
	}

	digits := digitsOf(h)
	page := idx.root
	for level := 0; level < diskLevels-1; level++ {
		child, _, err := idx.readInnerSlot(page, digits[level])
		if err != nil {
			return err
		}
		if child == 0 {
			return ErrNotFound
		}
		page = int64(child)
	}
	leafPage := page
	leafSlot := digits[diskLevels-1]

	recOff, err := idx.readLeafSlot(leafPage, leafSlot)
	if err != nil {
		return err
	}
	if recOff == 0 {
		return ErrNotFound
	}

	offset := int64(recOff)
	var pred int64
	for {
		e, err := idx.rf.load(offset)
		if err != nil {
			return err
		}
		if !e.empty() {
			k, v, rerr := idx.vl.read(e.ViewVersion, e.Len, e.Offset)
			if rerr == nil && idx.chainMatch(k, v, userKey, docKey) {
				if idx.unique {
					slotOff := leafPage + int64(leafSlot)*diskLeafSlotSize
					seed.stageDel(make([]byte, diskLeafSlotSize), func(b []byte) error {
						return idx.pf.write(slotOff, b)
					})
					return nil
				}
				return idx.stageCollapseDelete(seed, offset, pred, e)
			}
		}
		if e.Next == 0 {
			return ErrNotFound
		}
		pred = offset
		offset = int64(e.Next)
	}
}

func (idx *diskIndex) stageCollapseDelete(seed *Seed, victimOffset, predOffset int64, victim RecordEntry) error {
	if victim.Next != 0 {
		successor, err := idx.rf.load(int64(victim.Next))
		if err != nil {
			return err
		}
		buf := encodeRecordEntry(successor)
		seed.stageDel(buf, func(b []byte) error { return idx.rf.storeRaw(victimOffset, b) })
		return nil
	}

	buf := encodeRecordEntry(RecordEntry{})
	seed.stageDel(buf, func(b []byte) error { return idx.rf.storeRaw(victimOffset, b) })
	if predOffset != 0 {
		nbuf := make([]byte, 8)
		seed.stageDel(nbuf, func(b []byte) error { return idx.rf.storeRaw(predOffset+12, b) })
	}
	return nil
}

// rangeScan walks the tree in the ordering rules of §4.4: ascending visits
// increasing degree order at each level (current-level match before
// recursing... generalised here to "materialised children in order",
// since record_entry_offset at inner levels is unused in this
// implementation: every key terminates at a leaf); descending mirrors. Chain order is
// preserved regardless of direction.
func (idx *diskIndex) rangeScan(ascending bool, start, end HashKey, visit func(h HashKey, e RecordEntry) (bool, error)) error {
	if idx.root == 0 {
		return nil
	}
	unbounded := start == 0 && end == 0
	if !unbounded && start > end {
		return nil
	}
	var startDigits, endDigits [diskLevels]int
	if !unbounded {
		startDigits = digitsOf(start)
		endDigits = digitsOf(end)
	}
	_, err := idx.walkLevel(idx.root, 0, 0, unbounded, true, true, startDigits, endDigits, ascending, visit)
	return err
}

func diskRange(lo, hi int, ascending bool) []int {
	out := make([]int, 0, hi-lo+1)
	if ascending {
		for d := lo; d <= hi; d++ {
			out = append(out, d)
		}
	} else {
		for d := hi; d >= lo; d-- {
			out = append(out, d)
		}
	}
	return out
}

func (idx *diskIndex) walkLevel(page int64, level int, prefix uint64, unbounded, loTight, hiTight bool,
	startDigits, endDigits [diskLevels]int, ascending bool, visit func(HashKey, RecordEntry) (bool, error)) (bool, error) {

	lo, hi := 0, diskSlotsPerPage-1
	if !unbounded {
		if loTight {
			lo = startDigits[level]
		}
		if hiTight {
			hi = endDigits[level]
		}
	}

	if level == diskLevels-1 {
		for _, d := range diskRange(lo, hi, ascending) {
			recOff, err := idx.readLeafSlot(page, d)
			if err != nil {
				return false, err
			}
			if recOff == 0 {
				continue
			}
			h := prefix + uint64(d)
			cont, err := idx.walkChain(int64(recOff), h, visit)
			if err != nil || !cont {
				return cont, err
			}
		}
		return true, nil
	}

	for _, d := range diskRange(lo, hi, ascending) {
		child, _, err := idx.readInnerSlot(page, d)
		if err != nil {
			return false, err
		}
		if child == 0 {
			continue
		}
		childPrefix := prefix + uint64(d)*diskDistances[level]
		newLoTight := !unbounded && loTight && d == startDigits[level]
		newHiTight := !unbounded && hiTight && d == endDigits[level]
		cont, err := idx.walkLevel(int64(child), level+1, childPrefix, unbounded, newLoTight, newHiTight, startDigits, endDigits, ascending, visit)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

func (idx *diskIndex) walkChain(offset int64, h HashKey, visit func(HashKey, RecordEntry) (bool, error)) (bool, error) {
	for offset != 0 {
		e, err := idx.rf.load(offset)
		if err != nil {
			return false, err
		}
		if !e.empty() {
			cont, err := visit(h, e)
			if err != nil || !cont {
				return cont, err
			}
		}
		offset = int64(e.Next)
	}
	return true, nil
}
