// Package media owns the file-system storage for suggestion images and
// login QR codes. Files are written to a temp name and renamed into place;
// releases are best-effort by contract and report (not swallow) failures.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Size caps, matching the frontend contract: standalone uploads up to
// 10 MiB, images attached inline to create/update up to 2 MiB.
const (
	MaxUploadBytes = 10 << 20
	MaxInlineBytes = 2 << 20
)

const (
	uploadsPrefix = "/uploads/"
	qrCodesPrefix = "/qr_codes/"
)

var (
	// ErrNotImage indicates the payload is not an image type.
	// HTTP Status: 400 Bad Request
	ErrNotImage = errors.New("not an image")

	// ErrTooLarge indicates the payload exceeds the size cap.
	// HTTP Status: 413 Request Entity Too Large
	ErrTooLarge = errors.New("image too large")
)

// Store is a file-backed media store rooted at a single data directory.
type Store struct {
	uploadsDir string
	qrCodesDir string
}

// NewStore creates the uploads/ and qr_codes/ directories under root.
func NewStore(root string) (*Store, error) {
	s := &Store{
		uploadsDir: filepath.Join(root, "uploads"),
		qrCodesDir: filepath.Join(root, "qr_codes"),
	}
	for _, dir := range []string{s.uploadsDir, s.qrCodesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir %s: %w", dir, err)
		}
	}
	return s, nil
}

// UploadsDir returns the on-disk directory served under /uploads.
func (s *Store) UploadsDir() string { return s.uploadsDir }

// QRCodesDir returns the on-disk directory served under /qr_codes.
func (s *Store) QRCodesDir() string { return s.qrCodesDir }

// SaveImage validates and persists an uploaded image, returning its serving
// reference. size is the declared payload size (from the multipart header);
// maxBytes is the applicable cap. Content is sniffed, not trusted from the
// declared content type.
func (s *Store) SaveImage(originalName string, r io.Reader, size, maxBytes int64) (string, error) {
	if size > maxBytes {
		return "", fmt.Errorf("image is %d bytes, limit %d: %w", size, maxBytes, ErrTooLarge)
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read image: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("detected type %s: %w", mt.String(), ErrNotImage)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = mt.Extension()
	}
	name := fmt.Sprintf("upload_%s_%s%s",
		time.Now().Format("20060102_150405"), uuid.NewString()[:8], ext)

	body := io.MultiReader(strings.NewReader(string(head)), io.LimitReader(r, maxBytes))
	if err := writeAtomic(filepath.Join(s.uploadsDir, name), body); err != nil {
		return "", fmt.Errorf("save image %s: %w", name, err)
	}

	return uploadsPrefix + name, nil
}

// SaveQRCode persists a rendered login QR PNG and returns its serving
// reference.
func (s *Store) SaveQRCode(sessionID string, png []byte) (string, error) {
	name := fmt.Sprintf("qr_code_%s.png", sessionID)
	if err := writeAtomic(filepath.Join(s.qrCodesDir, name), strings.NewReader(string(png))); err != nil {
		return "", fmt.Errorf("save qr code %s: %w", name, err)
	}
	return qrCodesPrefix + name, nil
}

// Release deletes the file behind a serving reference. Empty references and
// already-missing files are not errors; anything else is returned for the
// caller to log — a failed release never fails the enclosing operation.
func (s *Store) Release(ref string) error {
	if ref == "" {
		return nil
	}

	var path string
	switch {
	case strings.HasPrefix(ref, uploadsPrefix):
		path = filepath.Join(s.uploadsDir, filepath.Base(ref))
	case strings.HasPrefix(ref, qrCodesPrefix):
		path = filepath.Join(s.qrCodesDir, filepath.Base(ref))
	default:
		return fmt.Errorf("release %q: unknown media reference", ref)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %q: %w", ref, err)
	}
	return nil
}

// writeAtomic writes to a temp file in the target directory and renames it
// into place so readers never observe a partial file.
func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
