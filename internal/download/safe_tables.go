package download

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// safeRule renames one SAFE-archive subdirectory using an id captured
// from the product's title, grounded on
// original_source/eodag/plugins/download/aws.py's
// finalize_s2_safe_product/get_chunk_dest_path. Kept as a data table
// (OPEN QUESTION DECISION #2 in SPEC_FULL.md) rather than inlined
// control flow in s3native.go, so new product families can be added
// without touching the reassembly logic. This is a representative
// subset of the original's product-family table (Sentinel-2 MSI's
// GRANULE/0 rename), not an exhaustive port of every Sentinel-1/2/3
// chunk-path rule aws.py enumerates.
type safeRule struct {
	// titlePattern must have exactly one capture group: the id to
	// substitute into toRelPath.
	titlePattern *regexp.Regexp
	fromRelPath  string
	toRelPath    func(id string) string
}

// safeRules maps a productType prefix to the rename rules its SAFE
// archive needs once every S3 key has landed flat under the product
// directory.
var safeRules = map[string][]safeRule{
	"S2_MSI": {
		{
			// e.g. S2A_MSIL1C_20240315T103021_N0510_R108_T32TQM_20240315T123456
			titlePattern: regexp.MustCompile(`^\w+_\w+_\w+_\w+_\w+_(\w+)_\w+$`),
			fromRelPath:  "GRANULE/0",
			toRelPath:    func(id string) string { return "GRANULE/" + id },
		},
	},
}

// safeEmptyDirs lists the SAFE-format directories that must exist even
// when the S3 listing didn't include any key under them, per aws.py's
// finalize_s2_safe_product.
var safeEmptyDirs = []string{"AUX_DATA", "HTML", "rep_info"}

// finalizeSafe reassembles a SAFE archive downloaded as loose S3 keys:
// it creates the directories a SAFE product always has even when no key
// landed under them, then applies any safeRules matching productType
// against the product's title. A tree with no manifest.safe is left
// untouched (not every bucket-downloaded product uses the SAFE layout).
func finalizeSafe(destDir, productType, title string) error {
	manifestDir, err := findManifestDir(destDir)
	if err != nil {
		return nil
	}

	for _, dir := range safeEmptyDirs {
		_ = os.MkdirAll(filepath.Join(manifestDir, dir), 0o755)
	}

	for prefix, rules := range safeRules {
		if !strings.HasPrefix(productType, prefix) {
			continue
		}
		for _, rule := range rules {
			m := rule.titlePattern.FindStringSubmatch(title)
			if m == nil {
				continue
			}
			from := filepath.Join(manifestDir, filepath.FromSlash(rule.fromRelPath))
			to := filepath.Join(manifestDir, filepath.FromSlash(rule.toRelPath(m[1])))
			if !dirExists(from) {
				continue
			}
			if err := os.Rename(from, to); err != nil {
				return errs.NewDownload("", "renaming "+rule.fromRelPath+": "+err.Error(), err)
			}
		}
	}
	return nil
}

// findManifestDir locates the directory directly containing
// manifest.safe beneath root.
func findManifestDir(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() && de.Name() == "manifest.safe" {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", errors.New("manifest.safe not found")
	}
	return found, nil
}
