package dispatch

import "time"

// Storage driver keys.
const (
	DriverFile      = "file"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// FileDriverConfig points the file driver at an existing .json document.
type FileDriverConfig struct {
	Path string
}

// RedisDriverConfig holds the connection details for the redis driver.
type RedisDriverConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the redis key holding the document. Default: expo:subscriptions
	Key string
}

// FirestoreDriverConfig locates the Firestore document holding the subscriptions.
type FirestoreDriverConfig struct {
	ProjectID string
	// Collection defaults to "expo", Document to "subscriptions".
	Collection string
	Document   string
}

// CacheConfig puts a redis read-aside cache in front of the firestore driver.
// Caching is off when Addr is empty.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// DriverConfig selects and configures a storage backend.
type DriverConfig struct {
	Driver    string
	File      FileDriverConfig
	Redis     RedisDriverConfig
	Firestore FirestoreDriverConfig
	Cache     CacheConfig
}
