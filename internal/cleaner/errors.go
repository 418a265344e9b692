package cleaner

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/fenilsonani/repotidy/internal/backup"
	"github.com/fenilsonani/repotidy/internal/rollback"
)

// Operation names the mutation that failed
type Operation string

const (
	OpRemove  Operation = "remove"
	OpArchive Operation = "archive"
	OpMove    Operation = "move"
)

// ErrorReason categorizes why an operation failed
type ErrorReason int

const (
	ErrorPermissionDenied ErrorReason = iota
	ErrorFileInUse
	ErrorFileNotFound
	ErrorIsDirectory
	ErrorInvalidPath
	ErrorBackupFailed
	ErrorInsufficientSpace
	ErrorDestinationExists
	ErrorUnknown
)

// String returns a human-readable error reason
func (e ErrorReason) String() string {
	switch e {
	case ErrorPermissionDenied:
		return "Permission denied"
	case ErrorFileInUse:
		return "File is in use"
	case ErrorFileNotFound:
		return "File not found"
	case ErrorIsDirectory:
		return "Is a directory"
	case ErrorInvalidPath:
		return "Invalid path"
	case ErrorBackupFailed:
		return "Backup failed"
	case ErrorInsufficientSpace:
		return "Insufficient disk space"
	case ErrorDestinationExists:
		return "Destination exists"
	case ErrorUnknown:
		return "Unknown error"
	default:
		return "Unspecified error"
	}
}

// OperationError represents a detailed per-file execution error
type OperationError struct {
	Path      string
	Op        Operation
	Reason    ErrorReason
	Original  error
	Retryable bool
}

// Error implements the error interface
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %s (%v)", e.Op, e.Path, e.Reason, e.Original)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	return e.Original
}

// UserMessage returns a user-friendly error message
func (e *OperationError) UserMessage() string {
	switch e.Reason {
	case ErrorPermissionDenied:
		return fmt.Sprintf("⚠️  Permission denied: %s", e.Path)
	case ErrorFileInUse:
		return fmt.Sprintf("⚠️  File is being used: %s (close the application and try again)", e.Path)
	case ErrorFileNotFound:
		return fmt.Sprintf("ℹ️  Already gone: %s", e.Path)
	case ErrorIsDirectory:
		return fmt.Sprintf("⚠️  Cannot %s directory: %s", e.Op, e.Path)
	case ErrorInvalidPath:
		return fmt.Sprintf("❌ Invalid or unsafe path: %s (%v)", e.Path, e.Original)
	case ErrorBackupFailed:
		return fmt.Sprintf("❌ Backup failed, file kept: %s", e.Path)
	case ErrorInsufficientSpace:
		return fmt.Sprintf("❌ Not enough space to archive: %s", e.Path)
	case ErrorDestinationExists:
		return fmt.Sprintf("⚠️  Destination already exists, move skipped: %s", e.Path)
	default:
		return fmt.Sprintf("❌ Error during %s of %s: %v", e.Op, e.Path, e.Original)
	}
}

// CategorizeError analyzes an error and returns a categorized OperationError
func CategorizeError(op Operation, path string, err error) *OperationError {
	if err == nil {
		return nil
	}

	opErr := &OperationError{
		Path:     path,
		Op:       op,
		Original: err,
		Reason:   ErrorUnknown,
	}

	// Backup errors first: they wrap the underlying I/O error
	if errors.Is(err, backup.ErrInsufficientSpace) {
		opErr.Reason = ErrorInsufficientSpace
		return opErr
	}
	if errors.Is(err, rollback.ErrBackupFailed) {
		opErr.Reason = ErrorBackupFailed
		return opErr
	}

	// Check if file not found
	if errors.Is(err, fs.ErrNotExist) {
		opErr.Reason = ErrorFileNotFound
		return opErr
	}

	// Check if permission error
	if errors.Is(err, fs.ErrPermission) {
		opErr.Reason = ErrorPermissionDenied
		return opErr
	}

	if errors.Is(err, fs.ErrExist) {
		opErr.Reason = ErrorDestinationExists
		return opErr
	}

	// Check syscall errors
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM:
			opErr.Reason = ErrorPermissionDenied
		case syscall.EBUSY, syscall.ETXTBSY:
			opErr.Reason = ErrorFileInUse
			opErr.Retryable = true
		case syscall.ENOENT:
			opErr.Reason = ErrorFileNotFound
		case syscall.EISDIR:
			opErr.Reason = ErrorIsDirectory
		case syscall.ENOSPC:
			opErr.Reason = ErrorInsufficientSpace
		default:
			opErr.Reason = ErrorUnknown
		}
		return opErr
	}

	// Default to unknown
	return opErr
}

// invalidPath wraps a path validation failure
func invalidPath(op Operation, path string, err error) *OperationError {
	return &OperationError{
		Path:     path,
		Op:       op,
		Reason:   ErrorInvalidPath,
		Original: err,
	}
}

// GroupErrors groups operation errors by reason
func GroupErrors(errs []*OperationError) map[ErrorReason][]*OperationError {
	grouped := make(map[ErrorReason][]*OperationError)
	for _, err := range errs {
		grouped[err.Reason] = append(grouped[err.Reason], err)
	}
	return grouped
}

// FormatErrorSummary creates a user-friendly summary of errors
func FormatErrorSummary(errs []*OperationError) string {
	if len(errs) == 0 {
		return ""
	}

	grouped := GroupErrors(errs)

	var b strings.Builder
	b.WriteString("\n⚠️  Issues encountered:\n")

	// Permission denied
	if perms, ok := grouped[ErrorPermissionDenied]; ok {
		fmt.Fprintf(&b, "   ├─ Permission denied: %d files\n", len(perms))
		b.WriteString("   │  └─ Tip: Check ownership of the affected directories\n")
	}

	// File in use
	if busy, ok := grouped[ErrorFileInUse]; ok {
		fmt.Fprintf(&b, "   ├─ File in use: %d files\n", len(busy))
		b.WriteString("   │  └─ Tip: Close applications and retry\n")
	}

	// Backups
	if failed, ok := grouped[ErrorBackupFailed]; ok {
		fmt.Fprintf(&b, "   ├─ Backup failed: %d files (kept in place)\n", len(failed))
	}
	if space, ok := grouped[ErrorInsufficientSpace]; ok {
		fmt.Fprintf(&b, "   ├─ Insufficient space: %d files\n", len(space))
		b.WriteString("   │  └─ Tip: Free space or point state_dir at a larger volume\n")
	}

	// File not found
	if notFound, ok := grouped[ErrorFileNotFound]; ok {
		fmt.Fprintf(&b, "   ├─ Already gone: %d files\n", len(notFound))
	}

	if invalid, ok := grouped[ErrorInvalidPath]; ok {
		fmt.Fprintf(&b, "   ├─ Refused by path safety checks: %d files\n", len(invalid))
	}

	if exists, ok := grouped[ErrorDestinationExists]; ok {
		fmt.Fprintf(&b, "   ├─ Move destination exists: %d files\n", len(exists))
	}

	// Directories
	if dirs, ok := grouped[ErrorIsDirectory]; ok {
		fmt.Fprintf(&b, "   ├─ Directories: %d items\n", len(dirs))
	}

	// Unknown errors
	if unknown, ok := grouped[ErrorUnknown]; ok {
		fmt.Fprintf(&b, "   └─ Other errors: %d files\n", len(unknown))
	}

	return b.String()
}
