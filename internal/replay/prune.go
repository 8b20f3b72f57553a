package replay

import (
	"os"
	"path/filepath"
	"sort"
)

// Prune bounds the record directory to the newest keep session bundles and
// reports how many were removed. A bundle is a directory carrying a
// manifest; the UTC timestamp suffix the recorder bakes into every folder
// name makes plain name order the age order, so no stat calls are needed.
// The bridge records one bundle per run, which makes a single sweep at
// startup sufficient; there is no background cleaner.
func Prune(root string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var bundles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest := filepath.Join(root, entry.Name(), "manifest.json")
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		bundles = append(bundles, entry.Name())
	}
	if len(bundles) <= keep {
		return 0, nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(bundles)))

	removed := 0
	for _, name := range bundles[keep:] {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
