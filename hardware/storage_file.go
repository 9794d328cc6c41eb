package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// FileStorage implements secure storage over a local directory. It is
// the development stand-in for RPMB-backed storage: attestation keys
// live under keys/<slot> and certificate chains under chains/<slot>/ as
// one file per certificate, read in name order.
type FileStorage struct {
	baseDir string
	log     *slog.Logger
}

// NewFileStorage creates a file storage backend rooted at baseDir,
// creating the directory layout if needed.
func NewFileStorage(baseDir string, log *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "keys"), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keys directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "chains"), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create chains directory: %w", err)
	}
	return &FileStorage{baseDir: baseDir, log: log}, nil
}

// ReadKey reads the provisioned attestation key for the slot.
func (s *FileStorage) ReadKey(ctx context.Context, slot interfaces.AttestationKeySlot) ([]byte, error) {
	path := filepath.Join(s.baseDir, "keys", slot.String())
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Debug("attestation key not readable", "path", path, "err", err)
		return nil, fmt.Errorf("read attestation key %s: %w", slot, err)
	}
	return data, nil
}

// ReadCertChain reads the provisioned certificate chain for the slot.
func (s *FileStorage) ReadCertChain(ctx context.Context, slot interfaces.AttestationKeySlot) ([][]byte, error) {
	dir := filepath.Join(s.baseDir, "chains", slot.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Debug("attestation chain not readable", "dir", dir, "err", err)
		return nil, fmt.Errorf("read attestation chain %s: %w", slot, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	chain := make([][]byte, 0, len(names))
	for _, name := range names {
		cert, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read chain entry %s: %w", name, err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificates provisioned for %s", slot)
	}
	return chain, nil
}
