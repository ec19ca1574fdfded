// Package datasource defines where input units come from. A Lister
// enumerates the units under a source location (directory tree or object
// store prefix); each unit opens independently as a reader.
package datasource

import (
	"context"
	"io"
)

// Source opens one input unit for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Lister enumerates the input units under a location. The returned order is
// deterministic so that re-runs process units in the same sequence.
type Lister interface {
	// List returns unit names (paths or object keys) in sorted order.
	List(ctx context.Context) ([]string, error)

	// Unit returns a Source for one of the names returned by List.
	Unit(name string) Source
}
