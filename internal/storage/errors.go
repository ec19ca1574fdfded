package storage

import "fmt"

// ConnectivityError reports that the warehouse is unreachable (dial, ping,
// or pool acquisition failure). Fatal to the run.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("warehouse unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ConstraintError reports an insert that violated a uniqueness or FK rule
// not suppressed by the idempotent-load SQL. Fatal to the run.
type ConstraintError struct {
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %v", e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }
