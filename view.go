// View Content Log (§4.2): the authoritative, append-only store of full
// record payloads.
//
// Frames are self-framed with a 4-byte big-endian length prefix, then a
// JSON envelope carrying the raw key and value bytes — the same
// "self-describing length, JSON payload" shape as the teacher's line-
// delimited record format (record.go's `{"idx":N,...}\n` lines), just
// binary-length-prefixed instead of newline-delimited so arbitrary value
// bytes (not only JSON-safe strings) can be stored without escaping.
package george

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

const viewLogMagic = "GEOR-VIEW"

// frameEnvelope is the JSON payload written after the 4-byte length
// prefix. []byte fields are base64-encoded by encoding/json-compatible
// marshalling (goccy/go-json matches the same convention), so arbitrary
// binary keys/values round-trip without escaping concerns.
type frameEnvelope struct {
	K []byte `json:"k"`
	V []byte `json:"v"`
	// Seq carries the view's auto-increment value assigned to this
	// write, 0 when the view has no increment index. Stashing it on the
	// frame itself (rather than only in the increment index) lets Remove
	// find and unlink the matching increment-index slot without a
	// separate lookup table (§4.6 step 3 / S3).
	Seq uint64 `json:"seq,omitempty"`
}

type viewLogExtra struct {
	Version uint16 `json:"version"`
}

// ViewLog is the per-view content log: one current paged file plus any
// number of archived, version-keyed files retained for historical reads.
type ViewLog struct {
	dir     string
	mu      sync.Mutex // guards version bump / rotate / archived-file cache
	current *pagedFile
	version uint16

	archived map[uint16]*pagedFile
}

func viewLogPath(dir string, version uint16) string {
	return filepath.Join(dir, fmt.Sprintf("content.v%d", version))
}

func createViewLog(dir string) (*ViewLog, error) {
	pf, err := createPagedFile(viewLogPath(dir, 1), viewLogMagic, "view", viewLogExtra{Version: 1})
	if err != nil {
		return nil, err
	}
	return &ViewLog{dir: dir, current: pf, version: 1, archived: map[uint16]*pagedFile{}}, nil
}

func openViewLog(dir string, version uint16) (*ViewLog, error) {
	pf, err := openPagedFile(viewLogPath(dir, version), viewLogMagic)
	if err != nil {
		return nil, err
	}
	var extra viewLogExtra
	if err := pf.decodeExtra(&extra); err != nil {
		return nil, fmt.Errorf("%w: view log extra: %v", ErrCorrupt, err)
	}
	return &ViewLog{dir: dir, current: pf, version: version, archived: map[uint16]*pagedFile{}}, nil
}

func (vl *ViewLog) close() error {
	vl.mu.Lock()
	defer vl.mu.Unlock()
	for _, pf := range vl.archived {
		pf.close()
	}
	return vl.current.close()
}

// currentVersion returns the log's current ViewVersion.
func (vl *ViewLog) currentVersion() uint16 {
	vl.mu.Lock()
	defer vl.mu.Unlock()
	return vl.version
}

// append serialises (key, value, seq) into a self-framed blob and appends
// it to the current file. Once append returns, the frame is observable by
// any subsequent read(version, len, offset) in this process (§4.2
// invariant).
func (vl *ViewLog) append(key, value []byte, seq uint64) (version uint16, length uint32, offset int64, err error) {
	env := frameEnvelope{K: key, V: value, Seq: seq}
	data, err := json.Marshal(env)
	if err != nil {
		return 0, 0, 0, err
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)

	vl.mu.Lock()
	cur := vl.current
	ver := vl.version
	vl.mu.Unlock()

	off, err := cur.append(buf)
	if err != nil {
		return 0, 0, 0, err
	}
	return ver, uint32(len(data)), off, nil
}

// read loads a frame from the content file for version (current or
// archived) and decodes it into its key/value pair.
func (vl *ViewLog) read(version uint16, length uint32, offset int64) (key, value []byte, err error) {
	k, v, _, err := vl.readFrame(version, length, offset)
	return k, v, err
}

// readFrame is read plus the frame's auto-increment Seq, for the delete
// path (§4.6 step 3 / S3), which needs it to unlink the increment index.
func (vl *ViewLog) readFrame(version uint16, length uint32, offset int64) (key, value []byte, seq uint64, err error) {
	pf, err := vl.fileForVersion(version)
	if err != nil {
		return nil, nil, 0, err
	}

	prefix, err := pf.read(offset, 4)
	if err != nil {
		return nil, nil, 0, err
	}
	storedLen := binary.BigEndian.Uint32(prefix)
	if storedLen != length {
		return nil, nil, 0, fmt.Errorf("%w: frame length %d, index says %d", ErrCorrupt, storedLen, length)
	}

	data, err := pf.read(offset+4, int(length))
	if err != nil {
		return nil, nil, 0, err
	}
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: frame: %v", ErrCorrupt, err)
	}
	return env.K, env.V, env.Seq, nil
}

func (vl *ViewLog) fileForVersion(version uint16) (*pagedFile, error) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if version == vl.version {
		return vl.current, nil
	}
	if pf, ok := vl.archived[version]; ok {
		return pf, nil
	}

	path := filepath.Join(vl.dir, "archive", fmt.Sprintf("%d", version), fmt.Sprintf("content.v%d", version))
	pf, err := openPagedFile(path, viewLogMagic)
	if err != nil {
		return nil, err
	}
	vl.archived[version] = pf
	return pf, nil
}

// archive rotates the content log: flushes and closes the current file,
// moves it under archive/<version>/, bumps version, and opens a fresh
// current file. Returns the archived file's final path.
func (vl *ViewLog) archive() (archivedPath string, newVersion uint16, err error) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if err := vl.current.sync(); err != nil {
		return "", 0, err
	}
	oldPath := viewLogPath(vl.dir, vl.version)
	if err := vl.current.close(); err != nil {
		return "", 0, err
	}

	destDir := filepath.Join(vl.dir, "archive", fmt.Sprintf("%d", vl.version))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	destPath := filepath.Join(destDir, fmt.Sprintf("content.v%d", vl.version))
	if err := os.Rename(oldPath, destPath); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	if err := compressArchive(destPath); err != nil {
		return "", 0, err
	}

	archivedVersion := vl.version
	vl.archived[archivedVersion], err = openPagedFile(destPath, viewLogMagic)
	if err != nil {
		return "", 0, err
	}

	vl.version++
	pf, err := createPagedFile(viewLogPath(vl.dir, vl.version), viewLogMagic, "view", viewLogExtra{Version: vl.version})
	if err != nil {
		return "", 0, err
	}
	vl.current = pf

	return destPath, vl.version, nil
}
