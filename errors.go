/*
Copyright © 2018 the Datacube authors.
This file is part of Datacube.

Datacube is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Datacube is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Datacube.  If not, see <http://www.gnu.org/licenses/>.
*/

package datacube

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFilled is returned when reading a cell that has not been
// written yet.
var ErrNotFilled = errors.New("datacube: cell not filled")

// ConfigurationError is returned when a provider cannot operate under
// the grid or time configuration of a cube. It is fatal to the provider
// that returns it, but not to the rest of an update run.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("datacube: provider %s: incompatible cube configuration: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SourceScanError records a source archive entry that could not be
// indexed, for example because its directory is missing or its file
// name does not parse to a valid time code. Providers skip such entries
// and report them as warnings.
type SourceScanError struct {
	Path string
	Err  error
}

func (e *SourceScanError) Error() string {
	return fmt.Sprintf("datacube: scanning source %s: %v", e.Path, e.Err)
}

func (e *SourceScanError) Unwrap() error { return e.Err }

// ComputeError is a failure to read, blend or resample the sources
// for a single temporal cell.
type ComputeError struct {
	Provider string
	Cell     int
	Err      error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("datacube: provider %s: computing cell %d: %v", e.Provider, e.Cell, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// StorageError is a failure to persist a computed raster. It aborts
// the whole update run.
type StorageError struct {
	Variable string
	Cell     int
	Err      error
}

func (e *StorageError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("datacube: cube storage: %v", e.Err)
	}
	return fmt.Sprintf("datacube: storing variable %s, cell %d: %v", e.Variable, e.Cell, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CellFailure describes a temporal cell that could not be computed.
type CellFailure struct {
	Provider   string
	Cell       int
	Start, End time.Time
	Err        error
}

// ProviderFailure describes a provider whose whole contribution
// was abandoned.
type ProviderFailure struct {
	Provider string
	Err      error
}

// UpdateReport summarizes the result of an update run.
type UpdateReport struct {
	// CellsWritten is the number of (provider, cell) pairs for which
	// all variables were persisted.
	CellsWritten int

	// CellsSkipped is the number of cells that were already filled
	// or that no source time range overlapped.
	CellsSkipped int

	CellFailures     []CellFailure
	ProviderFailures []ProviderFailure

	// ScanWarnings holds the source entries that providers skipped
	// while building their time range index.
	ScanWarnings []error
}

// Failed returns whether any cell or provider failed.
func (r *UpdateReport) Failed() bool {
	return len(r.CellFailures) > 0 || len(r.ProviderFailures) > 0
}

// Err returns an error summarizing all failures in the report, or nil
// if there were none.
func (r *UpdateReport) Err() error {
	if !r.Failed() {
		return nil
	}
	return &UpdateError{Report: r}
}

func (r *UpdateReport) merge(o *UpdateReport) {
	if o == nil {
		return
	}
	r.CellsWritten += o.CellsWritten
	r.CellsSkipped += o.CellsSkipped
	r.CellFailures = append(r.CellFailures, o.CellFailures...)
	r.ProviderFailures = append(r.ProviderFailures, o.ProviderFailures...)
	r.ScanWarnings = append(r.ScanWarnings, o.ScanWarnings...)
}

// UpdateError is the aggregated failure report of an update run.
type UpdateError struct {
	Report *UpdateReport
}

func (e *UpdateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "datacube: update finished with %d cell failure(s) and %d provider failure(s)",
		len(e.Report.CellFailures), len(e.Report.ProviderFailures))
	for _, f := range e.Report.ProviderFailures {
		fmt.Fprintf(&b, "\n\tprovider %s: %v", f.Provider, f.Err)
	}
	for _, f := range e.Report.CellFailures {
		fmt.Fprintf(&b, "\n\tprovider %s, cell %d [%s, %s): %v", f.Provider, f.Cell,
			f.Start.Format(dateFormat), f.End.Format(dateFormat), f.Err)
	}
	return b.String()
}
