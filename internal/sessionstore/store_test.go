package sessionstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPutGetRoundtrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state := []byte(`{"cookies":["a","b"],"local_storage":{"k":"v"}}`)
	if err := store.Put("+15551234567", state); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := store.Get("+15551234567")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.State) != string(state) {
		t.Errorf("state = %q, want %q", rec.State, state)
	}
	if rec.Phone != "+15551234567" {
		t.Errorf("phone = %q", rec.Phone)
	}
	if rec.CreatedAt.IsZero() || rec.LastUsedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.Get("+15551234567"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestPutPreservesCreatedAt(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Put("+15551234567", []byte("v1")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	first, err := store.Get("+15551234567")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := store.Put("+15551234567", []byte("v2")); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	second, err := store.Get("+15551234567")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed across replace: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if string(second.State) != "v2" {
		t.Errorf("state = %q, want v2", second.State)
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Put("+15551234567", []byte("state")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestGetIgnoresLeftoverTempFile(t *testing.T) {
	// A crash between temp write and rename leaves a .tmp file behind. The
	// record itself must stay readable and intact.
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Put("+15551234567", []byte("good")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	tmp := filepath.Join(dir, "session_15551234567.json.tmp")
	if err := os.WriteFile(tmp, []byte("partial garbage"), 0600); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	rec, err := store.Get("+15551234567")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.State) != "good" {
		t.Errorf("state = %q, want good", rec.State)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 {
		t.Errorf("List returned %d entries, want 1", len(metas))
	}
}

func TestDeleteAbsentIsNotAnError(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	removed, err := store.Delete("+15551234567")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed {
		t.Error("Delete reported removal of an absent record")
	}

	if err := store.Put("+15551234567", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err = store.Delete("+15551234567")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("Delete missed an existing record")
	}
	if ok, _ := store.Exists("+15551234567"); ok {
		t.Error("record still exists after delete")
	}
}

func TestListSortedByPhone(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, phone := range []string{"+79261234567", "+15551234567", "+442071234567"} {
		if err := store.Put(phone, []byte("s")); err != nil {
			t.Fatalf("Put(%s): %v", phone, err)
		}
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("List returned %d, want 3", len(metas))
	}
	for i := 1; i < len(metas); i++ {
		if metas[i-1].Phone >= metas[i].Phone {
			t.Errorf("List unsorted: %q before %q", metas[i-1].Phone, metas[i].Phone)
		}
	}
}

func TestTouchAdvancesLastUsed(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Put("+15551234567", []byte("s")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	before, _ := store.Get("+15551234567")

	time.Sleep(10 * time.Millisecond)
	if err := store.Touch("+15551234567"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	after, _ := store.Get("+15551234567")
	if !after.LastUsedAt.After(before.LastUsedAt) {
		t.Errorf("LastUsedAt not advanced: %v -> %v", before.LastUsedAt, after.LastUsedAt)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("Touch changed CreatedAt")
	}
}

func TestTouchMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Touch("+15551234567"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch = %v, want ErrNotFound", err)
	}
}

func TestEncryptedRoundtrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, WithEncryptionKey("correct horse battery staple"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	secret := []byte(`{"cookies":["session-token"]}`)
	if err := store.Put("+15551234567", secret); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// The blob on disk must not contain the plaintext.
	raw, err := os.ReadFile(filepath.Join(dir, "session_15551234567.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(raw), "session-token") {
		t.Error("plaintext leaked to disk")
	}

	rec, err := store.Get("+15551234567")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.State) != string(secret) {
		t.Errorf("decrypted state = %q, want %q", rec.State, secret)
	}
}

func TestEncryptedRecordNeedsKey(t *testing.T) {
	dir := t.TempDir()
	enc, err := New(dir, WithEncryptionKey("key one"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := enc.Put("+15551234567", []byte("secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	plain, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := plain.Get("+15551234567"); err == nil {
		t.Error("keyless Get of an encrypted record succeeded")
	}

	wrong, err := New(dir, WithEncryptionKey("key two"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := wrong.Get("+15551234567"); err == nil {
		t.Error("wrong-key Get of an encrypted record succeeded")
	}
}

func TestWatcherInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w, err := Watch(store)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if err := store.Put("+15551234567", []byte("s")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if metas, _ := store.List(); len(metas) != 1 {
		t.Fatalf("List before external change: %d entries", len(metas))
	}

	// Simulate an operator removing a session file behind the store's back.
	if err := os.Remove(filepath.Join(dir, "session_15551234567.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		metas, err := store.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(metas) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("cache never caught up with external delete")
}
