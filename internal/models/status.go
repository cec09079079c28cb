package models

// BackendInfo describes one configured backend.
type BackendInfo struct {
	ID         Backend `json:"id"`
	Model      string  `json:"model"`
	Dimensions int     `json:"dimensions"`
}

// CacheInfo reports the embedding cache state. Size and Capacity are zero when
// the cache is disabled.
type CacheInfo struct {
	Enabled   bool  `json:"enabled"`
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// ArchiveInfo reports the embedding archive state.
type ArchiveInfo struct {
	Entries        int64  `json:"entries"`
	DatabasePath   string `json:"database_path,omitempty"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

// StatusResponse is the shape of GET /api/v1/status.
type StatusResponse struct {
	Backends []BackendInfo `json:"backends"`
	Cache    CacheInfo     `json:"cache"`
	Archive  *ArchiveInfo  `json:"archive,omitempty"`
}
