// Package backup archives and restores the netdash preferences database
// and its configuration file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/HerbHall/netdash/internal/version"
)

// ManifestName is the archive entry describing its contents.
const ManifestName = "manifest.json"

// maxEntryBytes bounds a single restored file.
const maxEntryBytes = 512 << 20

// ErrExists is returned by Restore when a target file exists and force is
// not set.
var ErrExists = errors.New("target file exists")

// Options selects what Backup archives.
type Options struct {
	Database string // SQLite preferences database, required.
	Config   string // Config file, skipped when empty or missing.
	Output   string // Archive path.
}

// Manifest records what an archive holds.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Files     []string  `json:"files"`
}

// Backup writes a tar.gz archive holding the database, the optional config
// file and a manifest. The database WAL is checkpointed first so the copy
// is consistent.
func Backup(ctx context.Context, opts Options) (Manifest, error) {
	if _, err := os.Stat(opts.Database); err != nil {
		return Manifest{}, fmt.Errorf("database file not found: %w", err)
	}
	if err := checkpointWAL(ctx, opts.Database); err != nil {
		return Manifest{}, fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	files := []string{opts.Database}
	if opts.Config != "" {
		if _, err := os.Stat(opts.Config); err == nil {
			files = append(files, opts.Config)
		}
	}

	out, err := os.Create(opts.Output)
	if err != nil {
		return Manifest{}, fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	m := Manifest{Version: version.Short(), CreatedAt: time.Now().UTC()}
	for _, f := range files {
		name := filepath.Base(f)
		if err := addFile(tw, f, name); err != nil {
			return Manifest{}, fmt.Errorf("adding %s to archive: %w", name, err)
		}
		m.Files = append(m.Files, name)
	}
	if err := addManifest(tw, m); err != nil {
		return Manifest{}, err
	}

	if err := tw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("closing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("closing archive: %w", err)
	}
	return m, out.Close()
}

// Restore extracts an archive written by Backup into dir. Existing files
// are only replaced when force is set.
func Restore(_ context.Context, input, dir string, force bool) (Manifest, error) {
	in, err := os.Open(input)
	if err != nil {
		return Manifest{}, fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Manifest{}, fmt.Errorf("creating %s: %w", dir, err)
	}

	var m Manifest
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if name != hdr.Name || strings.HasPrefix(name, ".") {
			return Manifest{}, fmt.Errorf("unexpected archive entry %q", hdr.Name)
		}
		if name == ManifestName {
			if err := json.NewDecoder(io.LimitReader(tr, 1<<20)).Decode(&m); err != nil {
				return Manifest{}, fmt.Errorf("reading manifest: %w", err)
			}
			continue
		}
		if err := extractFile(tr, filepath.Join(dir, name), hdr.FileInfo().Mode().Perm(), force); err != nil {
			return Manifest{}, err
		}
	}
	if m.Version == "" {
		return Manifest{}, errors.New("archive has no manifest")
	}
	return m, nil
}

// checkpointWAL flushes pending WAL pages into the main database file.
func checkpointWAL(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func addManifest(tw *tar.Writer, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	hdr := &tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: m.CreatedAt,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	_, err = tw.Write(data)
	return err
}

func extractFile(r io.Reader, target string, perm os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	if perm == 0 {
		perm = 0o600
	}
	f, err := os.OpenFile(target, flags, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", target, ErrExists)
		}
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(f, io.LimitReader(r, maxEntryBytes)); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return f.Close()
}
