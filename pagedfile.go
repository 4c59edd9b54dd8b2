// Paged File: the lowest-level storage primitive (§4.1).
//
// append/read/write/len over a single *os.File. append is serialised per
// file with a mutex, exactly the discipline the teacher applies to its
// single writer handle (db.go's blockWrite/raw); positional reads need no
// lock and may run concurrently with writers, same as the teacher's
// io.NewSectionReader-based line()/align() helpers.
//
// Every paged file begins with a fixed HeaderSize-byte header: a JSON
// object padded with spaces and terminated with a newline, byte-for-byte
// the same scheme as the teacher's header.go (magic/version/padding),
// generalised from one fixed Header struct to an arbitrary per-kind Extra
// payload so record files, index files, sequence files, and view logs can
// each stamp their own metadata in the same HDR region.
package george

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	json "github.com/goccy/go-json"
)

// HeaderSize is the fixed size, in bytes, of every paged file's header.
const HeaderSize = 4096

// CurrentFileVersion is the file-format version this build writes and the
// highest version it accepts when reading.
const CurrentFileVersion = 1

// fileHeader is the on-disk header shared by every paged file kind. Extra
// carries kind-specific fields (e.g. the Disk Index Tree's root page
// offset, the View Content Log's current version).
type fileHeader struct {
	Magic   string          `json:"_m"`
	Version uint16          `json:"_v"`
	Kind    string          `json:"_k"`
	Extra   json.RawMessage `json:"_x,omitempty"`
}

func (h *fileHeader) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data)+1 > HeaderSize {
		return nil, fmt.Errorf("%w: header payload %d bytes exceeds %d", ErrCorrupt, len(data), HeaderSize)
	}
	buf := make([]byte, HeaderSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'
	return buf, nil
}

func decodeHeader(buf []byte) (*fileHeader, error) {
	var h fileHeader
	if err := json.Unmarshal(bytes.TrimSpace(buf), &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	return &h, nil
}

// pagedFile is an append/positional-read/positional-write file with a
// stamped header. Safe for concurrent readers; appends are serialised.
type pagedFile struct {
	f    *os.File
	mu   sync.Mutex
	tail int64

	header *fileHeader
}

// createPagedFile creates a new paged file at path, magic-tagged with kind,
// and writes extra as the header's kind-specific payload.
func createPagedFile(path, magic, kind string, extra any) (*pagedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrIoFailure, path, err)
	}

	extraJSON, err := json.Marshal(extra)
	if err != nil {
		f.Close()
		return nil, err
	}
	h := &fileHeader{Magic: magic, Version: CurrentFileVersion, Kind: kind, Extra: extraJSON}
	buf, err := h.encode()
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	return &pagedFile{f: f, tail: HeaderSize, header: h}, nil
}

// openPagedFile opens an existing paged file and validates its header
// against the expected magic.
func openPagedFile(path, wantMagic string) (*pagedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIoFailure, path, err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if h.Magic != wantMagic {
		f.Close()
		return nil, fmt.Errorf("%w: magic %q, want %q", ErrUnsupportedVersion, h.Magic, wantMagic)
	}
	if h.Version > CurrentFileVersion {
		f.Close()
		return nil, fmt.Errorf("%w: file version %d", ErrUnsupportedVersion, h.Version)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	return &pagedFile{f: f, tail: info.Size(), header: h}, nil
}

// rewriteHeader replaces the Extra payload in place. Never grows the file:
// the header region is reserved and is rewritten, never truncated.
func (pf *pagedFile) rewriteHeader(extra any) error {
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	pf.header.Extra = extraJSON
	buf, err := pf.header.encode()
	if err != nil {
		return err
	}
	if _, err := pf.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	return nil
}

// decodeExtra unmarshals the header's kind-specific payload into v.
func (pf *pagedFile) decodeExtra(v any) error {
	if len(pf.header.Extra) == 0 {
		return nil
	}
	return json.Unmarshal(pf.header.Extra, v)
}

// append serialises the write behind mu and returns the offset it landed
// at. append is the only operation that advances tail.
func (pf *pagedFile) append(data []byte) (int64, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	offset := pf.tail
	if _, err := pf.f.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	pf.tail += int64(len(data))
	return offset, nil
}

// read performs a positional read of exactly n bytes. A short read (EOF
// before n bytes) is reported as ErrShortRead; callers in a known-sparse
// region treat that as "absent slot" rather than propagating it.
func (pf *pagedFile) read(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := pf.f.ReadAt(buf, offset)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if read < n {
				return buf[:read], ErrShortRead
			}
		} else {
			return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
		}
	}
	return buf, nil
}

// write performs a positional write that does not affect tail.
func (pf *pagedFile) write(offset int64, data []byte) error {
	if _, err := pf.f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	return nil
}

// len returns the current file length (the append offset that would be
// used next), not counting in-flight concurrent appends.
func (pf *pagedFile) len() int64 {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.tail
}

func (pf *pagedFile) sync() error {
	return pf.f.Sync()
}

func (pf *pagedFile) close() error {
	return pf.f.Close()
}

// --- fixed-width u48 helpers, shared by RecordEntry/index slots/sequence slots ---

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

func getUint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
