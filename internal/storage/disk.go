package storage

import (
	"os"
)

// DiskUsageBytes returns the size of the database including its WAL and
// shared-memory files. Files that do not exist count as zero.
func (s *SQLiteArchive) DiskUsageBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
