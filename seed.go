// Seed Pipeline (§4.6): the two-phase write coordinator.
//
// A seed accumulates IndexPolicy writes before anything is known about
// where the payload will land in the View Content Log. Generalises the
// teacher's write.go, where a single append() call wrote the record line
// and then patched the sparse-region pointer in one step — george splits
// that into an explicit staged-policy object because a single Put/Set can
// now fan out across several index engines (the primary index, the
// auto-increment sequence, and any number of non-unique side indexes) that
// must all reference the very same content-log frame.
package george

import "fmt"

// indexPolicyKind distinguishes a seed's two policy shapes.
type indexPolicyKind int

const (
	policyPut indexPolicyKind = iota
	policyDel
)

// indexPolicy is one staged positional write. For a Put policy whose
// needsFrame is true, bytes[0:12] are overwritten with the encoded
// (version, len, offset) immediately before the write; bytes[12:] (the
// Next chain pointer) is already final when the policy is staged. A Del
// policy, or a Put policy with needsFrame false (a force-overwrite that
// reuses an existing frame reference — not currently produced, kept for
// completeness), is applied exactly as staged.
type indexPolicy struct {
	kind       indexPolicyKind
	write      func(b []byte) error // positional write of b at the staged location
	bytes      []byte
	needsFrame bool
}

// Seed is the per-operation staged-write object described by §4.6. Callers
// obtain one from an Engine write path, let the index engines stage their
// policies onto it, then Commit (for a write that needs a new content-log
// frame) or Apply (for a pure delete, which needs none).
type Seed struct {
	policies []indexPolicy
	seq      uint64
}

func newSeed() *Seed {
	return &Seed{}
}

// setSeq records the auto-increment value assigned to this write, stashed
// on the content-log frame itself so a later Remove can unlink the
// matching increment-index slot (§4.6 step 3 / S3).
func (s *Seed) setSeq(seq uint64) {
	s.seq = seq
}

// stagePut registers a Put policy. bytes must be exactly recordEntrySize
// long; its first 12 bytes are placeholders to be overwritten by Commit
// when needsFrame is true.
func (s *Seed) stagePut(needsFrame bool, bytes []byte, write func(b []byte) error) {
	s.policies = append(s.policies, indexPolicy{kind: policyPut, write: write, bytes: bytes, needsFrame: needsFrame})
}

// stageDel registers a Del policy whose payload is already final.
func (s *Seed) stageDel(bytes []byte, write func(b []byte) error) {
	s.policies = append(s.policies, indexPolicy{kind: policyDel, write: write, bytes: bytes})
}

// empty reports whether any policy was staged. A seed can end up empty
// when, e.g., a unique-index put resolved to nothing to do.
func (s *Seed) empty() bool {
	return len(s.policies) == 0
}

// Commit runs the full three-step protocol of §4.6: append the frame,
// then fill and apply every staged policy, then (via the caller, which
// holds the view's writer lock across this call per §5) advance the
// auto-increment counter. The view's writer lock must be held by the
// caller for the duration of this call; Commit does not lock anything
// itself, so that a single critical section can cover multiple index
// engines sharing one Seed.
func (s *Seed) Commit(vl *ViewLog, key, value []byte) error {
	version, length, offset, err := vl.append(key, value, s.seq)
	if err != nil {
		return fmt.Errorf("%w: content append: %v", ErrIoFailure, err)
	}
	return s.apply(version, length, offset)
}

// Apply runs steps 2 only, for operations (deletes) that never need a new
// content-log frame. Calling Apply on a seed containing a needsFrame
// policy is a programmer error; george never does this.
func (s *Seed) Apply() error {
	return s.apply(0, 0, 0)
}

// ApplyWithFrame runs step 2 against an already-existing frame rather
// than one freshly appended by Commit. Used by View.Compact, which
// reinserts live entries that already have a valid (version,len,offset)
// into a rebuilt index without touching the content log at all.
func (s *Seed) ApplyWithFrame(version uint16, length uint32, offset int64) error {
	return s.apply(version, length, offset)
}

func (s *Seed) apply(version uint16, length uint32, offset int64) error {
	for _, p := range s.policies {
		buf := p.bytes
		if p.needsFrame {
			buf = make([]byte, len(p.bytes))
			copy(buf, p.bytes)
			encodeFrameRef(buf, version, length, offset)
		}
		if err := p.write(buf); err != nil {
			return err
		}
	}
	return nil
}

// encodeFrameRef writes (version, len, offset) into the first 12 bytes of
// buf in the record-entry wire layout: version:u16 | len:u32 | offset:u48.
func encodeFrameRef(buf []byte, version uint16, length uint32, offset int64) {
	buf[0] = byte(version >> 8)
	buf[1] = byte(version)
	buf[2] = byte(length >> 24)
	buf[3] = byte(length >> 16)
	buf[4] = byte(length >> 8)
	buf[5] = byte(length)
	putUint48(buf[6:12], uint64(offset))
}
