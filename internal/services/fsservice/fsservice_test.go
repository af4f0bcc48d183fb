package fsservice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
	"github.com/runtimecore/core/internal/queuedresponse"
	"github.com/runtimecore/core/internal/resource"
	"github.com/runtimecore/core/internal/sharedbuffer"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(zerolog.Nop(), resource.NewTable(), nil, queuedresponse.NewStore(time.Minute), sharedbuffer.New(), time.Minute)
}

func TestOpenWriteReadCloseRoundTrip(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	done := make(chan coreapi.Result, 1)
	s.Open("1", path, os.O_RDWR|os.O_CREATE, 0o644, func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err != nil {
		t.Fatalf("open failed: %v", res.Err)
	}
	fd := res.Data.(map[string]any)["fd"].(uint64)
	id := coreapi.ID(fd)

	doneWrite := make(chan coreapi.Result, 1)
	s.Write("2", id, []byte("hello world"), 0, func(r coreapi.Result) { doneWrite <- r })
	wres := <-doneWrite
	if wres.Err != nil {
		t.Fatalf("write failed: %v", wres.Err)
	}

	doneRead := make(chan coreapi.Result, 1)
	s.Read("3", id, 5, 0, func(r coreapi.Result) { doneRead <- r })
	rres := <-doneRead
	if rres.Err != nil {
		t.Fatalf("read failed: %v", rres.Err)
	}
	if rres.Headers.Get("X-Method") != "fsRead" {
		t.Fatalf("expected X-Method fsRead header, got %q", rres.Headers.Get("X-Method"))
	}
	if rres.Headers.Get("Content-Length") != "5" {
		t.Fatalf("expected Content-Length 5, got %q", rres.Headers.Get("Content-Length"))
	}

	doneClose := make(chan coreapi.Result, 1)
	s.Close("4", id, func(r coreapi.Result) { doneClose <- r })
	cres := <-doneClose
	if cres.Err != nil {
		t.Fatalf("close failed: %v", cres.Err)
	}

	doneClose2 := make(chan coreapi.Result, 1)
	s.Close("5", id, func(r coreapi.Result) { doneClose2 <- r })
	cres2 := <-doneClose2
	if cres2.Err == nil || cres2.Err.Kind != coreapi.KindNotOpen {
		t.Fatalf("expected NotOpen on double close, got %+v", cres2)
	}
}

func TestWriteRetainsBufferInSharedBufferLedger(t *testing.T) {
	ledger := sharedbuffer.New()
	s := New(zerolog.Nop(), resource.NewTable(), nil, queuedresponse.NewStore(time.Minute), ledger, time.Minute)

	dir := t.TempDir()
	path := filepath.Join(dir, "retained.txt")

	done := make(chan coreapi.Result, 1)
	s.Open("1", path, os.O_RDWR|os.O_CREATE, 0o644, func(r coreapi.Result) { done <- r })
	res := <-done
	id := coreapi.ID(res.Data.(map[string]any)["fd"].(uint64))

	doneWrite := make(chan coreapi.Result, 1)
	s.Write("2", id, []byte("retain me"), 0, func(r coreapi.Result) { doneWrite <- r })
	<-doneWrite

	if ledger.Len() != 1 {
		t.Fatalf("expected Write to retain its buffer in the ledger, got %d entries", ledger.Len())
	}
}

func TestReadUnknownIDReportsNotOpen(t *testing.T) {
	s := newTestService(t)
	done := make(chan coreapi.Result, 1)
	s.Read("1", coreapi.ID(999), 10, 0, func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err == nil || res.Err.Kind != coreapi.KindNotOpen {
		t.Fatalf("expected NotOpen, got %+v", res)
	}
}

func TestStatReportsKindAndSize(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "stat-me.txt")
	if err := os.WriteFile(path, []byte("1234567"), 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan coreapi.Result, 1)
	s.Stat("1", path, func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err != nil {
		t.Fatalf("stat failed: %v", res.Err)
	}
	st := res.Data.(coreapi.Stat)
	if st.Kind != coreapi.StatKindFile {
		t.Fatalf("expected file kind, got %q", st.Kind)
	}
	if st.Size != 7 {
		t.Fatalf("expected size 7, got %d", st.Size)
	}
}

func TestMkdirRmdir(t *testing.T) {
	s := newTestService(t)
	dir := filepath.Join(t.TempDir(), "sub")

	done := make(chan coreapi.Result, 1)
	s.Mkdir("1", dir, 0o755, func(r coreapi.Result) { done <- r })
	if res := <-done; res.Err != nil {
		t.Fatalf("mkdir failed: %v", res.Err)
	}

	done2 := make(chan coreapi.Result, 1)
	s.Rmdir("2", dir, func(r coreapi.Result) { done2 <- r })
	if res := <-done2; res.Err != nil {
		t.Fatalf("rmdir failed: %v", res.Err)
	}
}

func TestReaddirListsEntries(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan coreapi.Result, 1)
	s.Readdir("1", dir, func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err != nil {
		t.Fatalf("readdir failed: %v", res.Err)
	}
	entries := res.Data.(map[string]any)["entries"].([]string)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", entries)
	}
}

func TestCloseStaleDescriptorsEvictsOnlyIdleFiles(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()

	openDone := make(chan coreapi.Result, 1)
	s.Open("1", filepath.Join(dir, "stale.txt"), os.O_RDWR|os.O_CREATE, 0o644, func(r coreapi.Result) { openDone <- r })
	staleRes := <-openDone
	staleID := coreapi.ID(staleRes.Data.(map[string]any)["fd"].(uint64))

	openDone2 := make(chan coreapi.Result, 1)
	s.Open("2", filepath.Join(dir, "fresh.txt"), os.O_RDWR|os.O_CREATE, 0o644, func(r coreapi.Result) { openDone2 <- r })
	freshRes := <-openDone2
	freshID := coreapi.ID(freshRes.Data.(map[string]any)["fd"].(uint64))

	if err := s.table.Use(staleID, func(r *resource.Resource) error {
		r.LastUsedAt = time.Now().Add(-time.Hour)
		return nil
	}); err != nil {
		t.Fatalf("backdating LastUsedAt: %v", err)
	}

	closed := s.CloseStaleDescriptors(time.Minute)
	if closed != 1 {
		t.Fatalf("expected 1 descriptor closed, got %d", closed)
	}

	doneRead := make(chan coreapi.Result, 1)
	s.Read("3", staleID, 1, 0, func(r coreapi.Result) { doneRead <- r })
	if res := <-doneRead; res.Err == nil || res.Err.Kind != coreapi.KindNotOpen {
		t.Fatalf("expected the stale descriptor to be evicted, got %+v", res)
	}

	doneRead2 := make(chan coreapi.Result, 1)
	s.Read("4", freshID, 1, 0, func(r coreapi.Result) { doneRead2 <- r })
	if res := <-doneRead2; res.Err != nil {
		t.Fatalf("expected the fresh descriptor to survive, got %+v", res)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan coreapi.Result, 1)
	s.Unlink("1", path, func(r coreapi.Result) { done <- r })
	if res := <-done; res.Err != nil {
		t.Fatalf("unlink failed: %v", res.Err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be gone after unlink")
	}
}
