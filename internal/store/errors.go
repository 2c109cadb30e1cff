package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrCorrupt  = errors.New("corrupt")
	ErrStorage  = errors.New("storage")
)

// StorageError wraps a filesystem failure. It satisfies errors.Is(err, ErrStorage)
// and unwraps to the underlying error.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// CorruptRecordError describes a persisted row that could not be loaded.
// Line is 1-based and counts the header.
type CorruptRecordError struct {
	Partition Status
	Line      int
	Reason    string
}

func (e *CorruptRecordError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("corrupt record in %s: %s", e.Partition, e.Reason)
	}
	return fmt.Sprintf("corrupt record in %s line %d: %s", e.Partition, e.Line, e.Reason)
}

func (e *CorruptRecordError) Is(target error) bool {
	return target == ErrCorrupt
}

func storageErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Path: path, Err: err}
}
