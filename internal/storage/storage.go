// Package storage owns the on-disk side of a batch run: the per-batch
// workspace, the summary file, and the deliverable archive.
package storage

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/code-enforcerr/MyMutualAME/internal/batch"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
)

// DeliveryLimit is the largest archive the chat transport will accept.
const DeliveryLimit = 49 << 20

// ErrArchiveTooLarge reports an archive over DeliveryLimit. The workspace
// contents are left in place.
type ErrArchiveTooLarge struct {
	Path string
	Size int64
}

func (e *ErrArchiveTooLarge) Error() string {
	return fmt.Sprintf("archive %s is %d bytes, over the %d byte delivery limit", e.Path, e.Size, int64(DeliveryLimit))
}

// Workspace creates (if needed) and returns the output directory for one
// batch under root.
func Workspace(root, batchID string) (string, error) {
	dir := filepath.Join(root, time.Now().UTC().Format("2006-01-02"), batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create batch workspace: %w", err)
	}
	return dir, nil
}

// CollectArtifacts moves attempt artifacts into dir so they ship inside
// the archive, rewriting each result's path to its new location. A failed
// move keeps the original path; every failure is returned.
func CollectArtifacts(dir string, results []scheduler.Result) []error {
	var errs []error
	for i := range results {
		a := results[i].Artifact
		if a == "" {
			continue
		}
		dest := filepath.Join(dir, filepath.Base(a))
		if err := os.Rename(a, dest); err != nil {
			errs = append(errs, fmt.Errorf("collect artifact %s: %w", a, err))
			continue
		}
		results[i].Artifact = dest
	}
	return errs
}

// WriteSummary persists the batch summary as summary.json in dir.
func WriteSummary(dir string, s batch.Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// PackageArchive zips the workspace into <dir>.zip and returns the archive
// path. Archives over DeliveryLimit return ErrArchiveTooLarge; the
// workspace and the oversized archive are both kept.
func PackageArchive(dir string) (string, error) {
	archivePath := dir + ".zip"
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if walkErr != nil {
		zw.Close()
		f.Close()
		return "", fmt.Errorf("package archive: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() > DeliveryLimit {
		return "", &ErrArchiveTooLarge{Path: archivePath, Size: info.Size()}
	}
	return archivePath, nil
}
