// Full-view enumeration (§6 RPC verb "records").
//
// Generalises the teacher's all.go, which scanned the heap and sparse
// regions directly rather than following index pointers, to avoid the
// N+1 cost of List-then-Get. george has no sorted/sparse region split to
// exploit that way — every index is already a full ordered structure —
// so Records instead drives the same rangeScan contract the Selector
// uses, just with no predicate, no skip/limit, and no sort override.
package george

import "iter"

// Record is one (key, value) pair yielded by Records.
type Record struct {
	Key   UserKey
	Value []byte
}

// Records yields every current record reachable from view's primary
// index, in that index's ascending order. Callers consume it lazily via
// range and can break early to stop the scan, same as the teacher's All.
func (e *Engine) Records(dbName, viewName string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		v, err := e.openView(dbName, viewName)
		if err != nil {
			yield(Record{}, err)
			return
		}
		primary, err := v.engine(primaryIndexName)
		if err != nil {
			yield(Record{}, err)
			return
		}

		scanErr := primary.rangeScan(true, 0, 0, func(h HashKey, rec RecordEntry) (bool, error) {
			key, value, _, err := v.log.readFrame(rec.ViewVersion, rec.Len, rec.Offset)
			if err != nil {
				return true, nil // a stale/unreachable frame is skipped, not fatal
			}
			return yield(Record{Key: UserKey(append([]byte(nil), key...)), Value: append([]byte(nil), value...)}, nil), nil
		})
		if scanErr != nil {
			yield(Record{}, scanErr)
		}
	}
}
