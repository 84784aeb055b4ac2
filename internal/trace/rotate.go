package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Rotate archives the trace file once it reaches maxBytes, keeping at
// most maxArchives archives. The live file restarts empty, which also
// restarts any hash chain from genesis; verification of an archive
// stands on its own. Returns the archive path, or "" if no rotation
// was needed.
func Rotate(path string, maxBytes int64, maxArchives int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat trace: %w", err)
	}
	if maxBytes <= 0 || info.Size() < maxBytes {
		return "", nil
	}

	archive := fmt.Sprintf("%s.%s", path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(path, archive); err != nil {
		return "", fmt.Errorf("rotate trace: %w", err)
	}

	if err := pruneArchives(path, maxArchives); err != nil {
		return archive, err
	}
	return archive, nil
}

// pruneArchives deletes the oldest archives beyond the retention
// limit. Archive names sort chronologically by construction.
func pruneArchives(path string, maxArchives int) error {
	if maxArchives <= 0 {
		return nil
	}
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return fmt.Errorf("list trace archives: %w", err)
	}
	if len(matches) <= maxArchives {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-maxArchives] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("prune trace archive: %w", err)
		}
	}
	return nil
}
