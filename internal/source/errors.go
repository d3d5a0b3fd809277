package source

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound = errors.New("source: table not found")
	ErrUnknownColumn = errors.New("source: unknown column")
)

type UnsupportedTypeError struct {
	Column   string
	Type     SQLType
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	if e.TypeName != "" {
		return fmt.Sprintf("unsupported type %d (%s) for column %q", e.Type, e.TypeName, e.Column)
	}
	return fmt.Sprintf("unsupported type %d for column %q", e.Type, e.Column)
}

type InvalidIdentifierError struct {
	Identifier string
	Reason     string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Identifier, e.Reason)
}

// ScanError reports the failure of a single partition. Connection failures and
// mid-scan failures are not distinguished.
type ScanError struct {
	Partition string
	Table     string
	Err       error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan partition %s: %v", e.Partition, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
