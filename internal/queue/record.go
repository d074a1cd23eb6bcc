package queue

// Status tracks whether a record has been through the compressor.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCompressed Status = "compressed"
)

// Record is one queued image and its compression state.
// Compressed, CompressedSize and CompressedType are set together by
// SetCompressed so that Status == StatusCompressed always implies all
// three are populated.
type Record struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	Size           int64  `db:"size"`
	ContentType    string `db:"content_type"`
	Original       []byte `db:"original"`        // image data as uploaded, stored as binary
	Compressed     []byte `db:"compressed"`      // re-encoded image data, nil until compressed
	CompressedSize int64  `db:"compressed_size"`
	CompressedType string `db:"compressed_type"`
	Quality        int    `db:"quality"` // 10..100, only affects the next compression run
	Status         Status `db:"status"`
	Rank           string `db:"sort_rank"` // ordering key, maintained by the store
}

// clone returns a shallow copy of the record. The image byte slices are
// shared; callers treat them as read-only.
func (r *Record) clone() *Record {
	copied := *r
	return &copied
}
