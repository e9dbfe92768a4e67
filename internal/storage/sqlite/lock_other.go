//go:build !unix

package sqlite

// lockFile is a no-op where flock is unavailable; SQLite's own file locking
// still serializes writers.
func lockFile(string) (func() error, error) {
	return func() error { return nil }, nil
}
