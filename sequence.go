// Sequence Index (§4.5): a dense flat array addressed directly by the
// numeric hash key, generalising the teacher's header.go fixed-offset
// field access (`binary.BigEndian` reads at a known byte position) to a
// whole file of such fixed-size slots, one per possible key value instead
// of one per header field.
//
// There is no collision chain here: the hash key and the slot address
// are the same thing, so two distinct numeric user keys never contend for
// a slot (numeric KeyTypes hash to themselves — see hash.go). Uniqueness
// is therefore structural, not enforced by comparison, unlike the Disk
// engine. Non-unique numeric indexes route to the Disk engine instead
// (see schema.go); this file only ever backs unique numeric indexes and
// the per-view auto-increment index.
package george

import (
	"errors"
	"fmt"
)

const sequenceSlotSize = 12 // version:u16 | len:u32 | offset:u48
const sequenceMagic = "GEOR-SEQ"

type sequenceIndex struct {
	keyType KeyType
	pf      *pagedFile
	vl      *ViewLog
}

func createSequenceIndex(path string, kt KeyType, vl *ViewLog) (*sequenceIndex, error) {
	pf, err := createPagedFile(path, sequenceMagic, "index-sequence", struct{}{})
	if err != nil {
		return nil, err
	}
	return &sequenceIndex{keyType: kt, pf: pf, vl: vl}, nil
}

func openSequenceIndex(path string, kt KeyType, vl *ViewLog) (*sequenceIndex, error) {
	pf, err := openPagedFile(path, sequenceMagic)
	if err != nil {
		return nil, err
	}
	return &sequenceIndex{keyType: kt, pf: pf, vl: vl}, nil
}

func (idx *sequenceIndex) close() error { return idx.pf.close() }

func (idx *sequenceIndex) slotOffset(h HashKey) int64 {
	return HeaderSize + int64(h)*sequenceSlotSize
}

// readSlot returns the decoded (version,len,offset) at h's slot. A short
// read means the file has never been extended that far — an unwritten
// slot, not an error.
func (idx *sequenceIndex) readSlot(h HashKey) (version uint16, length uint32, offset uint64, empty bool, err error) {
	buf, err := idx.pf.read(idx.slotOffset(h), sequenceSlotSize)
	if err == ErrShortRead {
		return 0, 0, 0, true, nil
	}
	if errors.Is(err, ErrIoFailure) {
		return 0, 0, 0, false, err
	}
	if err != nil {
		return 0, 0, 0, false, fmt.Errorf("%w: sequence slot: %v", ErrCorrupt, err)
	}
	version = uint16(buf[0])<<8 | uint16(buf[1])
	length = uint32(buf[2])<<24 | uint32(buf[3])<<16 | uint32(buf[4])<<8 | uint32(buf[5])
	offset = getUint48(buf[6:12])
	empty = version == 0 && length == 0 && offset == 0
	return version, length, offset, empty, nil
}

func (idx *sequenceIndex) get(userKey UserKey) ([]byte, error) {
	h, err := HashUserKey(userKey, idx.keyType, AlgXXHash3)
	if err != nil {
		return nil, err
	}
	version, length, offset, empty, err := idx.readSlot(h)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, ErrNotFound
	}
	_, value, err := idx.vl.read(version, length, int64(offset))
	return value, err
}

// stagePut stages the slot write; force=false on an already-occupied slot
// fails with AlreadyExists, matching the structural-uniqueness contract.
// docKey is unused here: this engine only ever backs a unique numeric
// index or the per-view increment index (see the package comment above),
// where userKey alone already identifies the slot.
func (idx *sequenceIndex) stagePut(seed *Seed, userKey, docKey UserKey, force bool) error {
	h, err := HashUserKey(userKey, idx.keyType, AlgXXHash3)
	if err != nil {
		return err
	}
	_, _, _, empty, err := idx.readSlot(h)
	if err != nil {
		return err
	}
	if !empty && !force {
		return ErrAlreadyExists
	}
	off := idx.slotOffset(h)
	seed.stagePut(true, make([]byte, sequenceSlotSize), func(b []byte) error {
		return idx.pf.write(off, b)
	})
	return nil
}

func (idx *sequenceIndex) stageDel(seed *Seed, userKey, docKey UserKey) error {
	h, err := HashUserKey(userKey, idx.keyType, AlgXXHash3)
	if err != nil {
		return err
	}
	_, _, _, empty, err := idx.readSlot(h)
	if err != nil {
		return err
	}
	if empty {
		return ErrNotFound
	}
	off := idx.slotOffset(h)
	seed.stageDel(make([]byte, sequenceSlotSize), func(b []byte) error {
		return idx.pf.write(off, b)
	})
	return nil
}

// rangeScan walks the file linearly between two hash-derived offsets
// (§4.7: "the sequence engine is linear"), skipping unwritten and deleted
// slots.
func (idx *sequenceIndex) rangeScan(ascending bool, start, end HashKey, visit func(h HashKey, e RecordEntry) (bool, error)) error {
	fileLen := idx.pf.len()
	if fileLen <= HeaderSize {
		return nil
	}
	maxSlot := HashKey((fileLen - HeaderSize) / sequenceSlotSize)
	if maxSlot == 0 {
		return nil
	}
	maxSlot--

	lo, hi := start, end
	if start == 0 && end == 0 {
		lo, hi = 0, maxSlot
	} else if hi > maxSlot {
		hi = maxSlot
	}
	if lo > hi {
		return nil
	}

	step := func(h HashKey) (bool, error) {
		version, length, offset, empty, err := idx.readSlot(h)
		if err != nil {
			return false, err
		}
		if empty {
			return true, nil
		}
		return visit(h, RecordEntry{ViewVersion: version, Len: length, Offset: offset})
	}

	if ascending {
		for h := lo; h <= hi; h++ {
			cont, err := step(h)
			if err != nil || !cont {
				return err
			}
			if h == hi {
				break
			}
		}
		return nil
	}
	for h := hi; ; h-- {
		cont, err := step(h)
		if err != nil || !cont {
			return err
		}
		if h == lo {
			break
		}
	}
	return nil
}
