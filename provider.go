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
	"fmt"
	"sort"
	"sync"

	"github.com/ctessum/sparse"
)

// Coverage is a bounding box in degrees of longitude and latitude.
type Coverage struct {
	West, South, East, North float64
}

// GlobalCoverage covers the whole globe.
var GlobalCoverage = Coverage{West: -180, South: -90, East: 180, North: 90}

// Intersects returns whether c and o share a region of non-zero area.
func (c Coverage) Intersects(o Coverage) bool {
	return c.West < o.East && o.West < c.East && c.South < o.North && o.South < c.North
}

// A SourceProvider reads one kind of source archive and computes cube
// rasters from it.
//
// The orchestrator calls Prepare once, then ComputeVariableImages once
// per temporal cell, one cell at a time, and finally Close.
type SourceProvider interface {
	// Name returns the name the provider was registered under.
	Name() string

	// Prepare scans the source archive to build the time range index
	// and checks that the provider can operate on the cube's grid.
	// Incompatibilities are reported as *ConfigurationError.
	Prepare() error

	// VariableDescriptors returns the variables the provider computes.
	VariableDescriptors() map[string]VariableDescriptor

	// SourceTimeRanges returns the time ranges of all source records,
	// sorted by start time.
	SourceTimeRanges() []TimeRange

	// SpatialCoverage returns the region the sources cover.
	SpatialCoverage() Coverage

	// ComputeVariableImages returns one raster of the cube's grid size
	// for each variable, computed from the source records whose
	// indices into SourceTimeRanges are the keys of w. Datasets only
	// referenced by the previous call's indices are released.
	ComputeVariableImages(w IndexToWeight) (map[string]*sparse.DenseArray, error)

	// Close releases all resources held by the provider.
	Close() error
}

// ScanWarner is implemented by providers that skip unusable source
// entries while preparing.
type ScanWarner interface {
	// ScanWarnings returns the *SourceScanError of every skipped entry.
	ScanWarnings() []error
}

// A Constructor creates a provider for the cube configuration cfg
// that reads the source archive at sourcePath.
type Constructor func(cfg *CubeConfig, name, sourcePath string) (SourceProvider, error)

// Registry maps provider names to their constructors.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Constructor)}
}

// Register adds a constructor under name. It returns an error if the
// name is already taken.
func (r *Registry) Register(name string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[name]; ok {
		return fmt.Errorf("datacube: provider %q is already registered", name)
	}
	r.m[name] = c
	return nil
}

// New creates a provider using the constructor registered under name.
func (r *Registry) New(name string, cfg *CubeConfig, sourcePath string) (SourceProvider, error) {
	r.mu.RLock()
	c, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("datacube: unknown provider %q (available: %v)", name, r.Names())
	}
	return c(cfg, name, sourcePath)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o := make([]string, 0, len(r.m))
	for n := range r.m {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}
