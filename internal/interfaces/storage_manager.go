package interfaces

// StorageManager owns the database connection and the stores built on it
type StorageManager interface {
	SessionStore() SessionStore
	TaskStorage() TaskStorage
	Close() error
}
