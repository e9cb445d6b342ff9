package database

// HNSW index parameters for face descriptors
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more descriptors from HNSW
	// to ensure we have enough distinct labels after deduplication.
	HNSWSearchMultiplier = 3
)

// Backend names
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMariaDB  = "mariadb"
)
