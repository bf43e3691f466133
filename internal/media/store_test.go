package media

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngPayload returns bytes carrying the PNG magic so MIME sniffing sees an
// image without needing a real encoder.
func pngPayload(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	return data
}

func TestSaveImageRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := pngPayload(4096)
	ref, err := store.SaveImage("photo.png", bytes.NewReader(data), int64(len(data)), MaxUploadBytes)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasPrefix(ref, "/uploads/") {
		t.Fatalf("unexpected reference %q", ref)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Fatalf("extension not preserved: %q", ref)
	}

	saved, err := os.ReadFile(filepath.Join(store.UploadsDir(), filepath.Base(ref)))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(saved, data) {
		t.Fatalf("saved content differs: %d bytes vs %d", len(saved), len(data))
	}

	// No temp leftovers after the rename.
	entries, _ := os.ReadDir(store.UploadsDir())
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveImageRejectsNonImage(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	data := []byte("just some text, definitely not pixels")
	_, err := store.SaveImage("notes.txt", bytes.NewReader(data), int64(len(data)), MaxUploadBytes)
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}

	entries, _ := os.ReadDir(store.UploadsDir())
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files: %v", entries)
	}
}

func TestSaveImageRejectsOversized(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	data := pngPayload(64)
	_, err := store.SaveImage("big.png", bytes.NewReader(data), MaxInlineBytes+1, MaxInlineBytes)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSaveImageSmallerThanSniffBuffer(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	data := pngPayload(16) // shorter than the sniff window
	ref, err := store.SaveImage("tiny.png", bytes.NewReader(data), int64(len(data)), MaxUploadBytes)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	saved, err := os.ReadFile(filepath.Join(store.UploadsDir(), filepath.Base(ref)))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if len(saved) != 16 {
		t.Fatalf("saved %d bytes, want 16", len(saved))
	}
}

func TestSaveQRCode(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	ref, err := store.SaveQRCode("abc-123", pngPayload(128))
	if err != nil {
		t.Fatalf("SaveQRCode: %v", err)
	}
	if ref != "/qr_codes/qr_code_abc-123.png" {
		t.Fatalf("unexpected reference %q", ref)
	}
	if _, err := os.Stat(filepath.Join(store.QRCodesDir(), "qr_code_abc-123.png")); err != nil {
		t.Fatalf("qr file missing: %v", err)
	}
}

func TestRelease(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	data := pngPayload(64)
	ref, err := store.SaveImage("photo.png", bytes.NewReader(data), int64(len(data)), MaxUploadBytes)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	if err := store.Release(ref); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.UploadsDir(), filepath.Base(ref))); !os.IsNotExist(err) {
		t.Fatalf("file survived release")
	}

	// Releasing again is not an error; neither is an empty reference.
	if err := store.Release(ref); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if err := store.Release(""); err != nil {
		t.Fatalf("empty Release: %v", err)
	}

	// A reference outside the managed prefixes is reported, not guessed at.
	if err := store.Release("/etc/passwd"); err == nil {
		t.Fatalf("expected error for foreign reference")
	}
}

func TestReleaseIgnoresPathTraversal(t *testing.T) {
	root := t.TempDir()
	store, _ := NewStore(root)

	outside := filepath.Join(root, "victim.txt")
	if err := os.WriteFile(outside, []byte("data"), 0o644); err != nil {
		t.Fatalf("write victim: %v", err)
	}

	// Base-name mapping keeps traversal attempts inside the uploads dir.
	if err := store.Release("/uploads/../victim.txt"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the store was touched: %v", err)
	}
}
