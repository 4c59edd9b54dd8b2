// Archive compression: a compressed side-copy of a rotated View Content
// Log, kept for cold storage / off-box retention.
//
// The archived file itself is never touched — §4.2's archive()/read()
// contract needs random positional access into historical frames by
// (version,len,offset), which a single streamed zstd blob cannot support.
// So, exactly the teacher's compress.go pattern (one package-level zstd
// encoder, reused across calls because constructing one is expensive),
// george additionally writes a `<archived file>.zst` companion, compressed
// in one EncodeAll pass over the whole file, next to the live-readable
// original. Nothing reads the .zst copy in-process; it
// exists for operators to ship to cold storage instead of the raw file.
package george

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// archiveEncoder is a shared, package-level encoder: EncodeAll is
// documented as safe for concurrent use against a single encoder
// instance, the same justification the teacher gives for its own
// package-level zstdEncoder in compress.go. Constructing an encoder is
// expensive (internal state tables), so one is built at init and reused
// across every archive() call, including concurrent ones from different
// views.
var archiveEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

// compressArchive zstd-compresses path into a path+".zst" companion.
// archive() runs rarely (log rotation), so ratio is prioritised over the
// SpeedFastest tradeoff the teacher makes for its hot-path history
// snapshots.
func compressArchive(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	compressed := archiveEncoder.EncodeAll(raw, nil)

	if err := os.WriteFile(path+".zst", compressed, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	return nil
}
