// Shared test scaffolding: opening a fresh engine in a temp directory and
// a minimal seeded database/view, the same shape as the teacher's
// openTestDB helper in db_test.go.
package george

import (
	"testing"
)

// openTestEngine opens a fresh engine rooted at a temp directory and
// registers cleanup to close it when the test finishes.
func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(dir, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// openTestView creates database "db" and view "v" (optionally with
// auto-increment) on a fresh engine, returning the engine.
func openTestView(t *testing.T, increment bool) *Engine {
	t.Helper()
	e := openTestEngine(t)
	if err := e.CreateDatabase("db", KeyTypeString); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := e.CreateView("db", "v", increment, KeyTypeNone); err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	return e
}
