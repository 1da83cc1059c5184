package uploads

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"
)

func newTestStore(t *testing.T, indexDir string) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Dir:      filepath.Join(t.TempDir(), "uploads"),
		IndexDir: indexDir,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ===== BaseName =====

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\photo.png`, "photo.png"},
		{"/abs/path/file.txt", "file.txt"},
		{".htaccess", "htaccess"},
		{"..", "upload"},
		{"", "upload"},
		{"/", "upload"},
		{"bad\x00name\n.txt", "badname.txt"},
		{"  spaced.txt  ", "spaced.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := BaseName(tt.in); got != tt.want {
				t.Errorf("BaseName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBaseName_Long(t *testing.T) {
	name := strings.Repeat("é", 300) + ".jpg"
	got := BaseName(name)
	if len(got) > maxNameLen {
		t.Errorf("len(BaseName) = %d, want <= %d", len(got), maxNameLen)
	}
	if !strings.HasSuffix(got, ".jpg") {
		t.Errorf("BaseName = %q, extension lost", got)
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '\uFFFD') {
		t.Errorf("BaseName cut a rune: %q", got)
	}
}

// ===== Store =====

func TestStore_Save(t *testing.T) {
	s := newTestStore(t, "")
	content := []byte("hello upload")

	rec, err := s.Save(context.Background(), Upload{
		Field:       "file",
		FileName:    "../notes.txt",
		ContentType: "text/plain",
		Content:     content,
		ClientAddr:  "127.0.0.1:5000",
		RequestID:   "req-1",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if rec.FileName != "notes.txt" {
		t.Errorf("FileName = %q, want %q", rec.FileName, "notes.txt")
	}
	if rec.StoredName != rec.ID+"_notes.txt" {
		t.Errorf("StoredName = %q, want %q", rec.StoredName, rec.ID+"_notes.txt")
	}
	if rec.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", rec.Size, len(content))
	}
	if len(rec.Digest) != 64 {
		t.Errorf("Digest = %q, want 64 hex chars", rec.Digest)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), rec.StoredName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("stored content = %q, want %q", data, content)
	}

	got, err := s.Index().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Index().Get() error = %v", err)
	}
	if got.Digest != rec.Digest || got.RequestID != "req-1" {
		t.Errorf("indexed record = %+v, want %+v", got, rec)
	}
	sum := blake2b.Sum256(content)
	if rec.Digest != hex.EncodeToString(sum[:]) {
		t.Errorf("Digest = %q, want BLAKE2b-256 of the content", rec.Digest)
	}
}

func TestStore_Save_NoTempFilesLeft(t *testing.T) {
	s := newTestStore(t, "")
	for i := 0; i < 3; i++ {
		if _, err := s.Save(context.Background(), Upload{FileName: "a.bin", Content: []byte{byte(i)}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("dir has %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStore_Save_DefaultContentType(t *testing.T) {
	s := newTestStore(t, "")
	rec, err := s.Save(context.Background(), Upload{FileName: "x", Content: []byte("x")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", rec.ContentType)
	}
}

func TestStore_Save_Canceled(t *testing.T) {
	s := newTestStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, Upload{FileName: "a", Content: []byte("a")}); err == nil {
		t.Error("Save() with canceled context should fail")
	}
}

func TestStore_SaveSubmission(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	up, err := s.Save(ctx, Upload{FileName: "a.txt", Content: []byte("a")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rec, err := s.SaveSubmission(ctx, Submission{
		Fields:     map[string][]string{"name": {"Ada"}, "tags": {"x", "y"}},
		JSON:       json.RawMessage(`{"k":1}`),
		Uploads:    []string{up.ID},
		ClientAddr: "127.0.0.1:5000",
		RequestID:  "req-2",
	})
	if err != nil {
		t.Fatalf("SaveSubmission() error = %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Errorf("record = %+v, want id and timestamp", rec)
	}

	got, err := s.Index().GetSubmission(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.ClientAddr != "127.0.0.1:5000" || got.RequestID != "req-2" {
		t.Errorf("client = %q, request = %q", got.ClientAddr, got.RequestID)
	}
	if tags := got.Fields["tags"]; len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Errorf("Fields[tags] = %v, want [x y]", tags)
	}
	if string(got.JSON) != `{"k":1}` {
		t.Errorf("JSON = %s", got.JSON)
	}
	if len(got.Uploads) != 1 || got.Uploads[0] != up.ID {
		t.Errorf("Uploads = %v, want [%s]", got.Uploads, up.ID)
	}

	// Submissions and uploads share the index but not the key space.
	if _, err := s.Index().Get(ctx, rec.ID); err != ErrRecordNotFound {
		t.Errorf("Get(submission id) = %v, want ErrRecordNotFound", err)
	}
}

func TestStore_Activity(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	act, err := s.Activity(ctx, 5)
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}
	if act.Files != 0 || act.Submissions != 0 || len(act.Recent) != 0 {
		t.Errorf("empty Activity() = %+v", act)
	}

	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		if _, err := s.Save(ctx, Upload{FileName: name, Content: []byte(name)}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if _, err := s.SaveSubmission(ctx, Submission{Fields: map[string][]string{"a": {"b"}}}); err != nil {
		t.Fatalf("SaveSubmission() error = %v", err)
	}

	act, err = s.Activity(ctx, 2)
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}
	if act.Files != 3 || act.Submissions != 1 {
		t.Errorf("Files = %d, Submissions = %d; want 3, 1", act.Files, act.Submissions)
	}
	if len(act.Recent) != 2 || act.Recent[0].FileName != "three.txt" || act.Recent[1].FileName != "two.txt" {
		t.Errorf("Recent = %+v, want three.txt then two.txt", act.Recent)
	}
	if act.Recent[0].Size != int64(len("three.txt")) || len(act.Recent[0].Digest) != 64 {
		t.Errorf("Recent[0] = %+v", act.Recent[0])
	}
}

func TestNewStore_RequiresDir(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Error("NewStore() without dir should fail")
	}
}

// ===== Index =====

func TestIndex_RecentNewestFirst(t *testing.T) {
	s := newTestStore(t, "")
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		rec, err := s.Save(context.Background(), Upload{FileName: "f.txt", Content: []byte{byte(i)}})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		ids = append(ids, rec.ID)
	}

	recent, err := s.Index().Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[3] || recent[1].ID != ids[2] {
		t.Errorf("Recent(2) = %v, want [%s %s]", recordIDs(recent), ids[3], ids[2])
	}

	all, err := s.Index().Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Recent(0) returned %d records, want 4", len(all))
	}

	n, err := s.Index().Count(context.Background())
	if err != nil || n != 4 {
		t.Errorf("Count() = %d, %v; want 4", n, err)
	}
}

func TestIndex_Missing(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	if _, err := s.Index().Get(ctx, "missing"); err != ErrRecordNotFound {
		t.Errorf("Get(missing) = %v, want ErrRecordNotFound", err)
	}
	if _, err := s.Index().GetSubmission(ctx, "missing"); err != ErrRecordNotFound {
		t.Errorf("GetSubmission(missing) = %v, want ErrRecordNotFound", err)
	}
}

func TestIndex_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := OpenIndex(dir, nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	if err := idx.Put(ctx, &Record{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", FileName: "kept.txt"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := idx.Put(ctx, &Record{ID: "x"}); err != ErrIndexClosed {
		t.Errorf("Put() after Close = %v, want ErrIndexClosed", err)
	}

	reopened, err := OpenIndex(dir, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if rec.FileName != "kept.txt" {
		t.Errorf("FileName = %q, want kept.txt", rec.FileName)
	}
}

func recordIDs(recs []*Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
