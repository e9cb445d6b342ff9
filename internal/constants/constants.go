// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Matching constants
const (
	// DefaultDistanceThreshold is the maximum mean Euclidean distance for a match.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.6

	// UnknownLabel is reported for faces with no label under the threshold
	UnknownLabel = "unknown"

	// HNSWCandidateLabels is the number of labels shortlisted by the HNSW index
	// before exact mean distances are computed
	HNSWCandidateLabels = 10
)

// Enrollment constants
const (
	// DefaultEnrollImageCount is the number of images a label is enrolled with
	DefaultEnrollImageCount = 5

	// MaxEnrollImageCount is the upper bound for ENROLL_IMAGE_COUNT
	MaxEnrollImageCount = 10

	// ImageFieldPrefix is the multipart field prefix (File1, File2, ...)
	ImageFieldPrefix = "File"

	// LabelField is the multipart field holding the label
	LabelField = "label"

	// MaxLabelLength is the longest label in characters every backend can store
	MaxLabelLength = 255

	// NearDuplicateDistance is the hash distance in bits below which two
	// enrollment images are reported as the same photo
	NearDuplicateDistance = 4
)

// Image constants
const (
	// ThumbnailSize is the edge length in pixels of face thumbnails
	ThumbnailSize = 128

	// ThumbnailJPEGQuality is the JPEG quality for face thumbnails
	ThumbnailJPEGQuality = 90

	// MaxImageSize is the maximum dimension (width or height) for images sent to the detector
	MaxImageSize = 1920
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// MultipartMemory is the part of a multipart body kept in memory
	MultipartMemory = 32 << 20
)
