// Secondary (field-keyed) index behaviour: a non-primary index is
// populated from, and looked up by, the document field sharing its name
// (§6's get_by_index contract), independent of the S3/S4 scenario tests
// that exercise it only incidentally through the increment index and a
// full Selector scan.
package george

import (
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
)

type personDoc struct {
	Age int `json:"age"`
}

func TestGetByIndexSecondaryField(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "age", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(age): %v", err)
	}

	docs := map[string]int{"alice": 30, "bob": 40, "carol": 30}
	for name, age := range docs {
		data := []byte(fmt.Sprintf(`{"age":%d}`, age))
		if err := e.Put("db", "v", UserKey(name), data); err != nil {
			t.Fatalf("Put(%s): %v", name, err)
		}
	}

	got, err := e.GetByIndex("db", "v", "age", UserKey("40"))
	if err != nil {
		t.Fatalf("GetByIndex(age=40): %v", err)
	}
	var doc personDoc
	mustUnmarshal(t, got, &doc)
	if doc.Age != 40 {
		t.Fatalf("GetByIndex(age=40) = %+v", doc)
	}

	got, err = e.GetByIndex("db", "v", "age", UserKey("30"))
	if err != nil {
		t.Fatalf("GetByIndex(age=30): %v", err)
	}
	mustUnmarshal(t, got, &doc)
	if doc.Age != 30 {
		t.Fatalf("GetByIndex(age=30) = %+v", doc)
	}

	// alice and carol both carry age 30: a non-unique index must chain
	// both of them independently, not collapse one onto the other. A
	// sort-by-"age" scan walks every chain node, so both must surface,
	// and both must still answer their own primary-key Get.
	hits, err := e.Select("db", "v", Selector{Sort: SortSpec{Param: "age", Asc: true}})
	if err != nil {
		t.Fatalf("Select sorted by age: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Select sorted by age returned %d hits, want 3", len(hits))
	}
	seen := map[string]bool{}
	for _, h := range hits {
		seen[string(h.Key)] = true
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if !seen[name] {
			t.Fatalf("Select sorted by age missing %q: got %v", name, hits)
		}
	}
	if _, err := e.Get("db", "v", UserKey("alice")); err != nil {
		t.Fatalf("Get(alice): %v", err)
	}
	if _, err := e.Get("db", "v", UserKey("carol")); err != nil {
		t.Fatalf("Get(carol): %v", err)
	}
}

// TestSetChangesSecondaryFieldInvalidatesOldEntry covers the stale-entry
// cleanup a force-overwrite must perform when a secondary-indexed field's
// value changes: the old field value must stop resolving, the new one
// must start.
func TestSetChangesSecondaryFieldInvalidatesOldEntry(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "age", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(age): %v", err)
	}

	if err := e.Put("db", "v", UserKey("dave"), []byte(`{"age":25}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := e.GetByIndex("db", "v", "age", UserKey("25")); err != nil {
		t.Fatalf("GetByIndex(age=25) before Set: %v", err)
	}

	if err := e.Set("db", "v", UserKey("dave"), []byte(`{"age":26}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := e.GetByIndex("db", "v", "age", UserKey("25")); !isNotFound(err) {
		t.Fatalf("GetByIndex(age=25) after Set = %v, want NotFound", err)
	}
	got, err := e.GetByIndex("db", "v", "age", UserKey("26"))
	if err != nil {
		t.Fatalf("GetByIndex(age=26) after Set: %v", err)
	}
	var doc personDoc
	mustUnmarshal(t, got, &doc)
	if doc.Age != 26 {
		t.Fatalf("GetByIndex(age=26) = %+v", doc)
	}
}

// TestRemoveUnlinksSecondaryIndex covers Remove's cleanup of every
// secondary index a deleted record participated in, not just the primary
// and increment indexes.
func TestRemoveUnlinksSecondaryIndex(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "age", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(age): %v", err)
	}
	if err := e.Put("db", "v", UserKey("erin"), []byte(`{"age":50}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Remove("db", "v", UserKey("erin")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := e.GetByIndex("db", "v", "age", UserKey("50")); !isNotFound(err) {
		t.Fatalf("GetByIndex(age=50) after Remove = %v, want NotFound", err)
	}
}

// TestRemoveDistinguishesSharedFieldValue covers the specific non-unique
// chain identity case: removing one of two documents sharing a secondary
// index's field value must unlink only that document, leaving its
// sibling's chain entry and primary record untouched.
func TestRemoveDistinguishesSharedFieldValue(t *testing.T) {
	e := openTestView(t, false)
	if err := e.CreateIndex("db", "v", "age", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(age): %v", err)
	}
	if err := e.Put("db", "v", UserKey("frank"), []byte(`{"age":33}`)); err != nil {
		t.Fatalf("Put(frank): %v", err)
	}
	if err := e.Put("db", "v", UserKey("gina"), []byte(`{"age":33}`)); err != nil {
		t.Fatalf("Put(gina): %v", err)
	}

	if err := e.Remove("db", "v", UserKey("frank")); err != nil {
		t.Fatalf("Remove(frank): %v", err)
	}

	if _, err := e.Get("db", "v", UserKey("frank")); !isNotFound(err) {
		t.Fatalf("Get(frank) after Remove = %v, want NotFound", err)
	}
	if _, err := e.Get("db", "v", UserKey("gina")); err != nil {
		t.Fatalf("Get(gina) after Remove(frank): %v", err)
	}
	got, err := e.GetByIndex("db", "v", "age", UserKey("33"))
	if err != nil {
		t.Fatalf("GetByIndex(age=33) after Remove(frank): %v", err)
	}
	var doc personDoc
	mustUnmarshal(t, got, &doc)
	if doc.Age != 33 {
		t.Fatalf("GetByIndex(age=33) = %+v", doc)
	}
}

// TestNumericPrimaryStillUnlinksIncrementAndSecondary covers locate's
// Sequence-engine path: a view whose default key type is numeric gets a
// Sequence-backed primary index, not a Disk one, so Remove/Set's
// stale-entry lookups must work through readSlot instead of silently
// finding nothing.
func TestNumericPrimaryStillUnlinksIncrementAndSecondary(t *testing.T) {
	e := openTestEngine(t)
	if err := e.CreateDatabase("db", KeyTypeUInt); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := e.CreateView("db", "v", true, KeyTypeUInt); err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	if err := e.CreateIndex("db", "v", "age", false, KeyTypeUInt, 0); err != nil {
		t.Fatalf("CreateIndex(age): %v", err)
	}

	if err := e.Put("db", "v", UserKey("1"), []byte(`{"age":70}`)); err != nil {
		t.Fatalf("Put(1): %v", err)
	}
	if err := e.Put("db", "v", UserKey("2"), []byte(`{"age":70}`)); err != nil {
		t.Fatalf("Put(2): %v", err)
	}

	if err := e.Remove("db", "v", UserKey("1")); err != nil {
		t.Fatalf("Remove(1): %v", err)
	}

	if _, err := e.GetByIndex("db", "v", incrementIndexName, UserKey("1")); !isNotFound(err) {
		t.Fatalf("increment lookup 1 after delete = %v, want NotFound", err)
	}
	if _, err := e.GetByIndex("db", "v", incrementIndexName, UserKey("2")); err != nil {
		t.Fatalf("increment lookup 2 after delete of 1: %v", err)
	}

	got, err := e.GetByIndex("db", "v", "age", UserKey("70"))
	if err != nil {
		t.Fatalf("GetByIndex(age=70) after Remove(1): %v", err)
	}
	var doc personDoc
	mustUnmarshal(t, got, &doc)
	if doc.Age != 70 {
		t.Fatalf("GetByIndex(age=70) = %+v", doc)
	}
	if _, err := e.Get("db", "v", UserKey("2")); err != nil {
		t.Fatalf("Get(2) after Remove(1): %v", err)
	}
}

func mustUnmarshal(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}
