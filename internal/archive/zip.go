// Package archive streams directory subtrees as ZIP files without
// buffering whole directories in memory.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"
)

// Entry is one file inside the archive. Name is the full path of the
// entry inside the ZIP (forward slashes).
type Entry struct {
	Name     string
	Key      string
	Modified time.Time
}

// Fetcher resolves an object-store key to its content stream.
type Fetcher func(ctx context.Context, key string) (io.ReadCloser, error)

// NewZipStream returns a reader producing a ZIP archive of the given
// entries, fetched one at a time and copied straight into the archive.
// The writer side runs in its own goroutine; any fetch or write error
// is surfaced through the reader. The caller must close the returned
// reader.
func NewZipStream(ctx context.Context, entries []Entry, fetch Fetcher) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		zw := zip.NewWriter(pw)

		for _, entry := range entries {
			if err := writeEntry(ctx, zw, entry, fetch); err != nil {
				zw.Close()
				pw.CloseWithError(err)
				return
			}
		}

		pw.CloseWithError(zw.Close())
	}()

	return pr
}

func writeEntry(ctx context.Context, zw *zip.Writer, entry Entry, fetch Fetcher) error {
	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Deflate,
		Modified: entry.Modified,
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %q: %w", entry.Name, err)
	}

	rc, err := fetch(ctx, entry.Key)
	if err != nil {
		return fmt.Errorf("failed to fetch object %q: %w", entry.Key, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to stream entry %q: %w", entry.Name, err)
	}

	return nil
}
