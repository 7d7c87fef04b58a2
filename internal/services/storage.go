package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

// SampleStore places raw sample bytes on disk at a path derived solely from
// their SHA256. A directory depth of three keeps leaf fan-out bounded as
// the corpus grows. Because the path is a pure function of content, two
// workers placing the same hash write identical bytes to the same path and
// need no locking.
type SampleStore struct {
	root string
	log  *logger.Logger
}

// NewSampleStore fails when the storage root is unset or not a directory.
// That is a fatal configuration error and must surface before any task
// processing begins.
func NewSampleStore(root string, log *logger.Logger) (*SampleStore, error) {
	if root == "" {
		return nil, fmt.Errorf("sample storage location missing")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("sample storage location %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sample storage location %q is not a directory", root)
	}
	return &SampleStore{root: root, log: log.With("service", "SampleStore")}, nil
}

// Locate returns root/h[0]/h[1]/h[2]/h for a valid 64-hex-char hash.
func (s *SampleStore) Locate(hash string) (string, error) {
	if err := utils.ValidateSHA256(hash); err != nil {
		return "", err
	}
	return filepath.Join(s.root, hash[0:1], hash[1:2], hash[2:3], hash), nil
}

// EnsurePlaced writes content to its canonical path. The write goes to a
// temp file in the leaf directory first and is renamed into place, so a
// partial write is never visible under the canonical name. Calling it again
// for the same content is harmless.
func (s *SampleStore) EnsurePlaced(hash string, content []byte, skipIfPresent bool) error {
	target, err := s.Locate(hash)
	if err != nil {
		return err
	}
	if skipIfPresent {
		if _, err := os.Stat(target); err == nil {
			return nil
		}
	}
	dir := filepath.Dir(target)
	// MkdirAll tolerates a directory created by a concurrent placement.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating shard directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+hash+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// PlaceFile moves an existing file into the store. Rename is preferred;
// when the source lives on another filesystem the content is copied through
// a temp file and the source removed afterwards.
func (s *SampleStore) PlaceFile(hash, sourcePath string, skipIfPresent bool) error {
	target, err := s.Locate(hash)
	if err != nil {
		return err
	}
	if skipIfPresent {
		if _, err := os.Stat(target); err == nil {
			return nil
		}
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating shard directory %q: %w", dir, err)
	}
	if err := os.Rename(sourcePath, target); err == nil {
		return nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()
	tmp, err := os.CreateTemp(dir, "."+hash+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Remove(sourcePath)
}
