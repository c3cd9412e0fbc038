package download

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// finalize implements spec.md §4.6's shared "finalize" step, grounded on
// base.py's _finalize / http.py's __finalize: optionally extract fsPath
// (a .zip or .tar.gz archive) and collapse ro.archiveDepth single-
// subdirectory levels, returning the final product path. A corrupt
// archive is not a hard failure: per spec.md's "corrupt-archive
// finalize" test scenario, extraction failure drops the archive
// extension from the returned path instead of raising.
func finalize(productID, fsPath string, ro resolvedOptions) (string, error) {
	ext := archiveExtension(fsPath)
	if !ro.extract || ext == "" {
		return fsPath, nil
	}

	productPath := strings.TrimSuffix(fsPath, ext)
	if dirExists(productPath) {
		entries, _ := os.ReadDir(productPath)
		if len(entries) > 0 {
			return collapseDepth(productPath, effectiveDepth(ro)), nil
		}
		_ = os.Remove(productPath)
	} else if fileExists(productPath) {
		_ = os.Remove(productPath)
	}

	var err error
	switch ext {
	case ".zip":
		err = extractZip(fsPath, productPath)
	case ".tar.gz":
		err = extractTarGz(fsPath, productPath)
	}
	if err != nil {
		renamed := strings.TrimSuffix(fsPath, ext)
		if renameErr := os.Rename(fsPath, renamed); renameErr == nil {
			return renamed, nil
		}
		return fsPath, nil
	}

	if ro.deleteArchive {
		_ = os.Remove(fsPath)
	}

	return collapseDepth(productPath, effectiveDepth(ro)), nil
}

// effectiveDepth folds the FlattenTopDirs convenience flag (spec.md §6's
// per-product-type "flatten_top_dirs") into the same archiveDepth walk
// base.py uses: flattening one top-level wrapper directory is
// archiveDepth 2 unless the caller already asked for more.
func effectiveDepth(ro resolvedOptions) int {
	depth := ro.archiveDepth
	if depth < 1 {
		depth = 1
	}
	if ro.flattenTop && depth < 2 {
		depth = 2
	}
	return depth
}

func archiveExtension(fsPath string) string {
	switch {
	case strings.HasSuffix(fsPath, ".tar.gz"):
		return ".tar.gz"
	case strings.HasSuffix(fsPath, ".zip"):
		return ".zip"
	default:
		return ""
	}
}

// collapseDepth implements base.py's archive_depth walk: "there is only
// one subdirectory per level."
func collapseDepth(productPath string, archiveDepth int) string {
	path := productPath
	for count := 1; count < archiveDepth; count++ {
		entries, err := os.ReadDir(path)
		if err != nil || len(entries) == 0 {
			break
		}
		path = filepath.Join(path, entries[0].Name())
	}
	return path
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if err := extractZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, dest string) error {
	target := filepath.Join(dest, f.Name)
	if err := ensureWithinDest(dest, target, f.Name); err != nil {
		return err
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

func extractTarGz(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, hdr.Name)
		if err := ensureWithinDest(dest, target, hdr.Name); err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

// ensureWithinDest rejects a zip-slip / tar-slip entry whose name
// escapes dest via ".." path components.
func ensureWithinDest(dest, target, entryName string) error {
	cleanDest := filepath.Clean(dest)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return errs.NewDownload("", "archive entry escapes destination: "+entryName, nil)
	}
	return nil
}
