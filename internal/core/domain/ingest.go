package domain

// UploadedFile is a raw file received for ingestion
type UploadedFile struct {
	Name string
	Size int64
	Data []byte
}

// ProcessedFile summarises how one uploaded file was chunked
type ProcessedFile struct {
	Filename    string `json:"filename"`
	ChunksCount int    `json:"chunks_count"`
	FileSize    int64  `json:"file_size"`
}

// IngestResult summarises an ingestion batch
type IngestResult struct {
	FilesProcessed []ProcessedFile `json:"files_processed"`
	TotalChunks    int             `json:"total_chunks"`
	SkippedFiles   []string        `json:"skipped_files,omitempty"`
	Index          *IndexResult    `json:"-"`
}

// UploadLimits constrains an ingestion batch
type UploadLimits struct {
	MinFiles          int
	MaxFiles          int
	MaxFileSize       int64
	AllowedExtensions []string
}

// DefaultUploadLimits returns the limits used when none are configured
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		MinFiles:          3,
		MaxFiles:          10,
		MaxFileSize:       10 * 1024 * 1024,
		AllowedExtensions: []string{".txt", ".pdf"},
	}
}
