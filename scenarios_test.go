// End-to-end scenario tests (S1-S6), seeded directly from the scenarios a
// correct implementation of this system must satisfy. Named after the
// scenario they cover so a failure here points straight at the guarantee
// that broke, the same "each test is the functional spec" philosophy as
// the teacher's db_test.go.
package george

import (
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
)

// TestScenarioS1BasicCRUD covers put/get/set/remove on a view with
// auto-increment enabled.
func TestScenarioS1BasicCRUD(t *testing.T) {
	e := openTestView(t, true)

	if err := e.Put("db", "v", UserKey("hello"), []byte("world")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := e.Get("db", "v", UserKey("hello"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("Get = %q, want %q", got, "world")
	}

	if err := e.Set("db", "v", UserKey("hello"), []byte("world2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = e.Get("db", "v", UserKey("hello"))
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if string(got) != "world2" {
		t.Fatalf("Get after Set = %q, want %q", got, "world2")
	}

	if err := e.Remove("db", "v", UserKey("hello")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := e.Get("db", "v", UserKey("hello")); !isNotFound(err) {
		t.Fatalf("Get after Remove = %v, want NotFound", err)
	}
}

// TestScenarioS2ThousandKeySweep inserts 1000 keys and spot-reads a
// sub-range, verifying no keys in that range were lost or corrupted.
func TestScenarioS2ThousandKeySweep(t *testing.T) {
	e := openTestView(t, false)

	for i := 1; i <= 1000; i++ {
		key := fmt.Sprintf("yes%d", i)
		val := fmt.Sprintf("no%d", i)
		if err := e.Put("db", "v", UserKey(key), []byte(val)); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	for i := 800; i <= 840; i++ {
		key := fmt.Sprintf("yes%d", i)
		want := fmt.Sprintf("no%d", i)
		got, err := e.Get("db", "v", UserKey(key))
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if string(got) != want {
			t.Fatalf("Get(%s) = %q, want %q", key, got, want)
		}
	}
}

// TestScenarioS3AutoIncrement verifies that deleting one key leaves its
// sibling increment lookups untouched and invalidates only its own.
func TestScenarioS3AutoIncrement(t *testing.T) {
	e := openTestView(t, true)

	for i := 1; i <= 4; i++ {
		key := fmt.Sprintf("%d", i)
		if err := e.Put("db", "v", UserKey(key), []byte("v"+key)); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	for i, want := range []string{"1", "2", "3", "4"} {
		got, err := e.GetByIndex("db", "v", incrementIndexName, UserKey(want))
		if err != nil {
			t.Fatalf("GetByIndex(increment=%s): %v", want, err)
		}
		if string(got) != "v"+fmt.Sprintf("%d", i+1) {
			t.Fatalf("increment lookup %s = %q", want, got)
		}
	}

	if err := e.Remove("db", "v", UserKey("2")); err != nil {
		t.Fatalf("Remove(2): %v", err)
	}

	if _, err := e.GetByIndex("db", "v", incrementIndexName, UserKey("2")); !isNotFound(err) {
		t.Fatalf("increment lookup 2 after delete = %v, want NotFound", err)
	}
	for _, want := range []string{"1", "3", "4"} {
		if _, err := e.GetByIndex("db", "v", incrementIndexName, UserKey(want)); err != nil {
			t.Fatalf("increment lookup %s after delete of 2: %v", want, err)
		}
	}
}

type s4doc struct {
	Age    int `json:"age"`
	Height int `json:"height"`
}

// TestScenarioS4RangePredicate covers the Selector's condition tree,
// sort-by-secondary-index, and limit (Skip is left at 0).
func TestScenarioS4RangePredicate(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "height", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(height): %v", err)
	}

	const n = 10000
	for i := 1; i <= n; i++ {
		doc := s4doc{Age: i, Height: n - i}
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		key := fmt.Sprintf("k%d", i)
		if err := e.Put("db", "v", UserKey(key), data); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	sel := Selector{
		Conditions: []Condition{
			{Param: "age", Cond: OpGe, Value: float64(4990)},
			{Param: "age", Cond: OpLe, Value: float64(9010)},
			{Param: "height", Cond: OpLe, Value: float64(5000)},
		},
		Sort:  SortSpec{Param: "height", Asc: true},
		Skip:  0,
		Limit: 20,
	}

	hits, err := e.Select("db", "v", sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(hits) != 20 {
		t.Fatalf("len(hits) = %d, want 20", len(hits))
	}

	prevHeight := -1
	for _, h := range hits {
		var doc s4doc
		if err := json.Unmarshal(h.Value, &doc); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if doc.Age < 4990 || doc.Age > 9010 || doc.Height > 5000 {
			t.Fatalf("hit violates predicate: %+v", doc)
		}
		if doc.Height < prevHeight {
			t.Fatalf("hits not ascending by height: %d after %d", doc.Height, prevHeight)
		}
		prevHeight = doc.Height
	}
}

// TestScenarioS5DeleteDuringScan runs S4's conditions and sort, without a
// limit, with its delete flag set, then verifies a repeat of that selector
// (no delete) returns none of what was just removed.
func TestScenarioS5DeleteDuringScan(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "height", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(height): %v", err)
	}

	const n = 10000
	for i := 1; i <= n; i++ {
		doc := s4doc{Age: i, Height: n - i}
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		key := fmt.Sprintf("k%d", i)
		if err := e.Put("db", "v", UserKey(key), data); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	sel := Selector{
		Conditions: []Condition{
			{Param: "age", Cond: OpGe, Value: float64(4990)},
			{Param: "age", Cond: OpLe, Value: float64(9010)},
			{Param: "height", Cond: OpLe, Value: float64(5000)},
		},
		Sort: SortSpec{Param: "height", Asc: true},
	}

	deleted, err := e.SelectAndDelete("db", "v", sel)
	if err != nil {
		t.Fatalf("SelectAndDelete: %v", err)
	}
	if len(deleted) == 0 {
		t.Fatalf("SelectAndDelete matched 0 rows, want > 0")
	}

	for _, h := range deleted {
		if _, err := e.Get("db", "v", h.Key); !isNotFound(err) {
			t.Fatalf("Get(%s) after delete = %v, want NotFound", h.Key, err)
		}
	}

	remaining, err := e.Select("db", "v", sel)
	if err != nil {
		t.Fatalf("Select after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("Select after delete = %d rows, want 0", len(remaining))
	}
}

// TestScenarioS6ArchiveAndRecordReadBack covers view content-log rotation:
// a key written before archiving still resolves afterwards, and
// ViewRecord reports the rotated file's path and creation time.
func TestScenarioS6ArchiveAndRecordReadBack(t *testing.T) {
	e := openTestView(t, false)

	if err := e.Put("db", "v", UserKey("before-archive"), []byte("still-here")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := e.ArchiveView("db", "v")
	if err != nil {
		t.Fatalf("ArchiveView: %v", err)
	}
	if info.Path == "" {
		t.Fatalf("ArchiveView returned empty path")
	}
	if info.Created == 0 {
		t.Fatalf("ArchiveView returned zero creation time")
	}

	got, err := e.Get("db", "v", UserKey("before-archive"))
	if err != nil {
		t.Fatalf("Get after archive: %v", err)
	}
	if string(got) != "still-here" {
		t.Fatalf("Get after archive = %q, want %q", got, "still-here")
	}

	rec, err := e.ViewRecord("db", "v", 0)
	if err != nil {
		t.Fatalf("ViewRecord: %v", err)
	}
	if rec.Path != info.Path {
		t.Fatalf("ViewRecord path = %q, want %q", rec.Path, info.Path)
	}
	if rec.Created == 0 {
		t.Fatalf("ViewRecord returned zero creation time")
	}

	if err := e.Put("db", "v", UserKey("after-archive"), []byte("new-version")); err != nil {
		t.Fatalf("Put after archive: %v", err)
	}
	got, err = e.Get("db", "v", UserKey("after-archive"))
	if err != nil {
		t.Fatalf("Get(after-archive): %v", err)
	}
	if string(got) != "new-version" {
		t.Fatalf("Get(after-archive) = %q, want %q", got, "new-version")
	}
}
