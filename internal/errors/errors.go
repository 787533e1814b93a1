package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sync lifecycle errors.
var (
	ErrAlreadySyncing   = errors.New("sync already in progress")
	ErrCancelled        = errors.New("sync cancelled")
	ErrTooManyDeletions = errors.New("too many deletions")
	ErrAccountNotFound  = errors.New("account not found")
)

// Adapter contract violations. These abort the pass.
var (
	ErrDuplicateID        = errors.New("duplicate item id in tree")
	ErrUnknownParent      = errors.New("parent folder does not exist")
	ErrUnknownItem        = errors.New("item does not exist")
	ErrRootModification   = errors.New("the root folder cannot be modified")
	ErrMissingOrderItem   = errors.New("order is missing an item of the folder")
	ErrUnknownOrderItem   = errors.New("order contains an item not in the folder")
	ErrUnsupportedScheme  = errors.New("bookmark url scheme not supported by adapter")
	ErrInconsistentMapped = errors.New("mapping points to missing item")
)

// Local scope errors.
var (
	ErrMissingLocalRoot = errors.New("local root folder does not exist")
	ErrForeignRoot      = errors.New("folder contains the root of another account")
)

// Remote storage errors.
var (
	ErrLockFile       = errors.New("remote bookmarks file is locked by another client")
	ErrDecryption     = errors.New("could not decrypt remote bookmarks file")
	ErrRemoteRequest  = errors.New("remote request failed")
	ErrRemoteResponse = errors.New("unexpected remote response")
	ErrAuthentication = errors.New("remote rejected credentials")
	ErrParse          = errors.New("could not parse bookmarks file")
)

// FailsafeError aborts a pass before any destructive operation runs because
// the plan would remove a large share of the tree.
type FailsafeError struct {
	Percent  int
	Location string
}

func (e *FailsafeError) Error() string {
	return fmt.Sprintf("failsafe: the current sync run would delete %d%% of your %s bookmarks", e.Percent, e.Location)
}

func (e *FailsafeError) Is(target error) bool {
	return target == ErrTooManyDeletions
}

// CycleError reports a refused folder move. It is collected in the pass
// result and does not abort the pass.
type CycleError struct {
	ItemID   string
	Title    string
	TargetID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("refused to move folder %q (%s) into %s: would create a cycle", e.Title, e.ItemID, e.TargetID)
}

// AdapterError wraps a failed resource call with the operation and side
// that produced it.
type AdapterError struct {
	Op       string
	Location string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Location, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// MultiError collects several independent failures of one pass.
type MultiError struct {
	List []error
}

func (e *MultiError) Error() string {
	msgs := make([]string, 0, len(e.List))
	for _, err := range e.List {
		msgs = append(msgs, err.Error())
	}

	return strings.Join(msgs, "\n")
}

func (e *MultiError) Unwrap() []error {
	return e.List
}

// Combine returns nil for no errors, the error itself for one and a
// MultiError otherwise.
func Combine(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &MultiError{List: errs}
	}
}

// Stringify renders an error for storage on the account. Nested multi
// errors are flattened one per line.
func Stringify(err error) string {
	if err == nil {
		return ""
	}

	var multi *MultiError
	if errors.As(err, &multi) {
		lines := make([]string, 0, len(multi.List))
		for _, sub := range multi.List {
			lines = append(lines, Stringify(sub))
		}

		return strings.Join(lines, "\n")
	}

	return err.Error()
}
