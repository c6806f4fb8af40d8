package flash

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/ota"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// SlotA and SlotB name the two image slots
	SlotA = "a"
	SlotB = "b"

	bootFile = "boot.yaml"
)

var (
	// ErrSessionOpen is returned by Begin while another session is staging
	ErrSessionOpen = errors.New("flash: staging session already open")

	// ErrNoSpace is returned by Begin when the image exceeds MaxImageSize
	ErrNoSpace = errors.New("flash: image larger than slot")

	// ErrSizeMismatch is returned by End when fewer or more bytes than
	// declared were written
	ErrSizeMismatch = errors.New("flash: written size differs from declared size")

	// ErrDigestMismatch is returned by Verify when the active slot no longer
	// hashes to the recorded digest
	ErrDigestMismatch = errors.New("flash: active image digest mismatch")
)

// BootRecord is the content of boot.yaml
type BootRecord struct {
	Active    string    `yaml:"active"`
	Version   int       `yaml:"version"`
	Size      int64     `yaml:"size"`
	Digest    string    `yaml:"digest"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// File is a two-slot image store rooted at a directory
type File struct {
	// MaxImageSize is the slot capacity; 0 means unlimited
	MaxImageSize int64

	dir     string
	mu      sync.Mutex
	staging bool
}

// Open returns the store in dir, creating the directory if needed.
func Open(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create flash directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the store directory
func (f *File) Dir() string {
	return f.dir
}

// SlotPath returns the image file of a slot
func (f *File) SlotPath(slot string) string {
	return filepath.Join(f.dir, "slot-"+slot+".bin")
}

// Boot reads the boot record. A store that has never been written reports
// slot a at version 0.
func (f *File) Boot() (BootRecord, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, bootFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BootRecord{Active: SlotA}, nil
		}
		return BootRecord{}, fmt.Errorf("failed to read boot record: %w", err)
	}

	var rec BootRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return BootRecord{}, fmt.Errorf("failed to parse boot record: %w", err)
	}
	if rec.Active != SlotA && rec.Active != SlotB {
		return BootRecord{}, fmt.Errorf("boot record names unknown slot %q", rec.Active)
	}
	return rec, nil
}

// Verify re-hashes the active image and compares it with the boot record.
// A store with no image yet verifies trivially.
func (f *File) Verify() error {
	rec, err := f.Boot()
	if err != nil {
		return err
	}
	if rec.Digest == "" {
		return nil
	}

	file, err := os.Open(f.SlotPath(rec.Active))
	if err != nil {
		return fmt.Errorf("failed to open active image: %w", err)
	}
	defer file.Close()

	h := blake3.New()
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("failed to read active image: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != rec.Digest {
		return fmt.Errorf("%w: slot %s is %s, boot record says %s", ErrDigestMismatch, rec.Active, got, rec.Digest)
	}
	return nil
}

// Begin opens a staging session for the inactive slot.
func (f *File) Begin(version int, size int64) (ota.Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.staging {
		return nil, ErrSessionOpen
	}
	if size <= 0 {
		return nil, fmt.Errorf("flash: invalid image size %d", size)
	}
	if f.MaxImageSize > 0 && size > f.MaxImageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrNoSpace, size, f.MaxImageSize)
	}

	rec, err := f.Boot()
	if err != nil {
		return nil, err
	}
	target := SlotB
	if rec.Active == SlotB {
		target = SlotA
	}

	partial := f.SlotPath(target) + ".partial"
	file, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	f.staging = true
	logging.Debug("Flash staging session opened",
		zap.String("slot", target),
		zap.Int("version", version),
		zap.Int64("size", size),
	)
	return &session{
		store:   f,
		slot:    target,
		version: version,
		size:    size,
		partial: partial,
		file:    file,
		hasher:  blake3.New(),
	}, nil
}

func (f *File) release() {
	f.mu.Lock()
	f.staging = false
	f.mu.Unlock()
}

// session stages one image
type session struct {
	store   *File
	slot    string
	version int
	size    int64
	partial string
	file    *os.File
	hasher  hash.Hash
	written int64
	done    bool
}

func (s *session) Write(p []byte) (int, error) {
	if s.done {
		return 0, errors.New("flash: write to closed session")
	}
	if s.written+int64(len(p)) > s.size {
		return 0, fmt.Errorf("%w: write past %d bytes", ErrSizeMismatch, s.size)
	}
	n, err := s.file.Write(p)
	s.hasher.Write(p[:n])
	s.written += int64(n)
	return n, err
}

func (s *session) End() error {
	if s.done {
		return errors.New("flash: session already closed")
	}
	defer s.finish()

	if s.written != s.size {
		s.discard()
		return fmt.Errorf("%w: %d of %d bytes", ErrSizeMismatch, s.written, s.size)
	}
	if err := s.file.Sync(); err != nil {
		s.discard()
		return fmt.Errorf("failed to sync staged image: %w", err)
	}
	if err := s.file.Close(); err != nil {
		os.Remove(s.partial)
		return fmt.Errorf("failed to close staged image: %w", err)
	}
	if err := os.Rename(s.partial, s.store.SlotPath(s.slot)); err != nil {
		os.Remove(s.partial)
		return fmt.Errorf("failed to move staged image into slot: %w", err)
	}

	rec := BootRecord{
		Active:    s.slot,
		Version:   s.version,
		Size:      s.size,
		Digest:    hex.EncodeToString(s.hasher.Sum(nil)),
		UpdatedAt: time.Now().UTC(),
	}
	if err := writeBootRecord(filepath.Join(s.store.dir, bootFile), rec); err != nil {
		return err
	}

	logging.Info("Flash image activated",
		zap.String("slot", rec.Active),
		zap.Int("version", rec.Version),
		zap.String("digest", rec.Digest),
	)
	return nil
}

func (s *session) Abort() error {
	if s.done {
		return nil
	}
	defer s.finish()
	s.discard()
	logging.Debug("Flash staging session aborted",
		zap.String("slot", s.slot),
		zap.Int64("written", s.written),
	)
	return nil
}

func (s *session) discard() {
	s.file.Close()
	os.Remove(s.partial)
}

func (s *session) finish() {
	s.done = true
	s.store.release()
}

// writeBootRecord replaces path atomically: temp file, fsync, rename,
// fsync of the parent directory.
func writeBootRecord(path string, rec BootRecord) error {
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal boot record: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create boot record: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write boot record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync boot record: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close boot record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move boot record into place: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}
