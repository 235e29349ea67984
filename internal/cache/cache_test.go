package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/panbanda/tangle/pkg/models"
)

func openTemp(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func sampleFacts(path string) models.FileFacts {
	return models.FileFacts{
		Path:   path,
		Module: "pkg.mod",
		Imports: []models.RawImport{
			{Target: "pkg.util", Line: 1, Kind: models.ImportFrom, Names: []string{"helper"}},
		},
		Definitions: []models.Definition{{Name: "run", Kind: models.DefFunction, Line: 3}},
		Fragments: []models.Fragment{{
			File: path, StartLine: 3, EndLine: 9, Name: "run", Kind: models.FragmentFunction,
			NodeCount: 14, Text: []string{"def", "run"}, Renamed: []string{"_ID"}, Raw: []string{"id:run"},
		}},
		Lines: 10,
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	c, dir := openTemp(t)
	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Fatalf("Open() should create parent directory: %v", err)
	}
	if c.Path() != filepath.Join(dir, "nested", "cache.db") {
		t.Errorf("Path() = %q", c.Path())
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "import os\n")

	want := sampleFacts(src)
	if err := c.Put(ctx, src, want); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	var got models.FileFacts
	if !c.Get(ctx, src, &got) {
		t.Fatal("Get() reported a miss for an unmodified file")
	}
	if got.Module != want.Module || len(got.Imports) != 1 || got.Imports[0].Names[0] != "helper" {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if len(got.Fragments) != 1 || got.Fragments[0].Raw[0] != "id:run" {
		t.Errorf("fragments not preserved: %+v", got.Fragments)
	}
}

func TestGetRelativeAndAbsolutePathShareEntry(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	t.Chdir(dir)
	writeFile(t, "rel.py", "x = 1\n")

	if err := c.Put(ctx, "rel.py", sampleFacts("rel.py")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	var got models.FileFacts
	if !c.Get(ctx, filepath.Join(dir, "rel.py"), &got) {
		t.Error("absolute lookup should hit the entry stored under a relative path")
	}
}

func TestMtimeChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "import os\n")
	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(src, later, later); err != nil {
		t.Fatal(err)
	}
	var got models.FileFacts
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss after the modification time changed")
	}
}

func TestSizeChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "import os\n")
	info, _ := os.Stat(src)
	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	writeFile(t, src, "import os\nimport sys\n")
	if err := os.Chtimes(src, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	var got models.FileFacts
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss after the size changed")
	}
}

func TestSameSizeSameMtimeDifferentContentInvalidates(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "print(1)\n")
	info, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	writeFile(t, src, "print(2)\n")
	if err := os.Chtimes(src, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(src)
	if after.Size() != info.Size() || !after.ModTime().Equal(info.ModTime()) {
		t.Fatal("test setup should preserve size and modification time")
	}

	var got models.FileFacts
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss when only the digest differs")
	}
}

func TestCorruptPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "import os\n")
	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := c.exec(ctx, `UPDATE proc_cache SET payload = ?`, []byte("not zstd")); err != nil {
		t.Fatal(err)
	}
	var got models.FileFacts
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss on an undecodable payload")
	}
}

func TestMissingFileAndRow(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "gone.py")

	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Errorf("Put() on a missing file should be skipped silently, got %v", err)
	}
	var got models.FileFacts
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss for a missing file")
	}

	writeFile(t, src, "x = 1\n")
	if c.Get(ctx, src, &got) {
		t.Error("Get() should miss when no row exists")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}
}

func TestUnserializableValueSkipped(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "x = 1\n")

	if err := c.Put(ctx, src, make(chan int)); err != nil {
		t.Errorf("Put() should skip unserializable values, got %v", err)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}
}

func TestOverwriteDeleteClearStats(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)
	a := filepath.Join(dir, "a.py")
	b := filepath.Join(dir, "b.py")
	writeFile(t, a, "a = 1\n")
	writeFile(t, b, "b = 1\n")

	for _, p := range []string{a, a, b} {
		if err := c.Put(ctx, p, sampleFacts(p)); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.PayloadBytes <= 0 {
		t.Errorf("PayloadBytes = %d, want > 0", stats.PayloadBytes)
	}

	if err := c.Delete(ctx, a); err != nil {
		t.Fatal(err)
	}
	var got models.FileFacts
	if c.Get(ctx, a, &got) {
		t.Error("Get() should miss after Delete()")
	}
	if !c.Get(ctx, b, &got) {
		t.Error("Delete() removed the wrong entry")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Get(ctx, b, &got) {
		t.Error("Get() should miss after Clear()")
	}
}

func TestReopenRecreatesTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	src := filepath.Join(dir, "mod.py")
	writeFile(t, src, "import os\n")

	c, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.exec(ctx, `DROP TABLE proc_cache`); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer c.Close()
	if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
		t.Fatalf("Put() after reopen error: %v", err)
	}
	var got models.FileFacts
	if !c.Get(ctx, src, &got) {
		t.Error("Get() after reopen should hit")
	}
}

func TestCloseTwice(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestNilCache(t *testing.T) {
	ctx := context.Background()
	var c *Cache
	var got models.FileFacts
	if c.Get(ctx, "x.py", &got) {
		t.Error("nil cache should always miss")
	}
	if err := c.Put(ctx, "x.py", got); err != nil {
		t.Error(err)
	}
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}

func TestConcurrentDisjointFiles(t *testing.T) {
	ctx := context.Background()
	c, dir := openTemp(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		src := filepath.Join(dir, string(rune('a'+i))+".py")
		writeFile(t, src, "v = 1\n")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Put(ctx, src, sampleFacts(src)); err != nil {
				errs <- err
				return
			}
			var got models.FileFacts
			if !c.Get(ctx, src, &got) {
				errs <- os.ErrNotExist
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access: %v", err)
	}
}

func TestFingerprintFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.py")
	writeFile(t, src, "abc")
	fp, err := FingerprintFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Size != 3 {
		t.Errorf("Size = %d, want 3", fp.Size)
	}
	if fp.Digest != HashBytes([]byte("abc")) {
		t.Errorf("Digest = %s, want %s", fp.Digest, HashBytes([]byte("abc")))
	}
	if len(fp.Digest) != 64 {
		t.Errorf("digest length = %d, want 64", len(fp.Digest))
	}
	if _, err := FingerprintFile(filepath.Join(t.TempDir(), "none.py")); err == nil {
		t.Error("FingerprintFile() should fail for a missing file")
	}
}
