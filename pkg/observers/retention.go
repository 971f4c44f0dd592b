package observers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact suffixes written by the timeline and usage observers.
const (
	TimelineSuffix = ".jsonl"
	UsageSuffix    = ".usage.json"
)

// PurgeArtifacts deletes conversation artifacts in dir whose last write is
// older than maxAge. Only files ending in one of suffixes are considered; a
// missing dir is not an error. It returns the number of files removed.
func PurgeArtifacts(dir string, maxAge time.Duration, suffixes ...string) (int, error) {
	if dir == "" || maxAge <= 0 || len(suffixes) == 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !hasAnySuffix(entry.Name(), suffixes) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// PurgeTimelines removes conversation traces older than maxAge.
func PurgeTimelines(dir string, maxAge time.Duration) (int, error) {
	return PurgeArtifacts(dir, maxAge, TimelineSuffix)
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
