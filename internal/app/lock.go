package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"manual-rag/internal/models"
)

const lockFile = "ingest.lock"

// acquireLock creates the ingestion lock in dir. It fails with
// ErrIngestInProgress while another ingestion holds it.
func acquireLock(dir string) (release func(), err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s exists (remove it if no ingestion is running)", models.ErrIngestInProgress, path)
	}
	if err != nil {
		return nil, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()
	return func() { os.Remove(path) }, nil
}

func removeLock(dir string) error {
	err := os.Remove(filepath.Join(dir, lockFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
