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

// Package providers holds the source providers that read the archives
// a cube can be built from.
package providers

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/datacube"
)

// base holds the state shared by the providers in this package.
type base struct {
	cfg   *datacube.CubeConfig
	name  string
	dir   string
	cache *datacube.DatasetCache
	log   logrus.FieldLogger

	ranges   []datacube.TimeRange
	warnings []error

	// prev is the index set of the previous compute call.
	prev datacube.IndexToWeight
}

func newBase(cfg *datacube.CubeConfig, name, dir string) base {
	return base{
		cfg:   cfg,
		name:  name,
		dir:   dir,
		cache: datacube.NewDatasetCache(datacube.DefaultMaxOpenDatasets),
		log:   logrus.StandardLogger().WithField("provider", name),
	}
}

func (b *base) Name() string { return b.name }

func (b *base) SourceTimeRanges() []datacube.TimeRange { return b.ranges }

func (b *base) SpatialCoverage() datacube.Coverage { return datacube.GlobalCoverage }

func (b *base) ScanWarnings() []error { return b.warnings }

func (b *base) Close() error { return b.cache.CloseAllDatasets() }

// warn records a source entry that is skipped.
func (b *base) warn(path string, err error) {
	b.warnings = append(b.warnings, &datacube.SourceScanError{Path: path, Err: err})
}

// probe opens and releases a source file to check that it is readable.
func (b *base) probe(path string) error {
	if _, err := b.cache.GetDataset(path); err != nil {
		return err
	}
	return b.cache.CloseDataset(path)
}

// release closes the datasets that were used by the previous compute
// call and are not used by w. A file holding several records stays
// open as long as any of its records is still needed.
func (b *base) release(w datacube.IndexToWeight) {
	valid := func(i int) bool { return i >= 0 && i < len(b.ranges) }
	keep := make(map[string]bool)
	next := make(datacube.IndexToWeight, len(w))
	for i, v := range w {
		if valid(i) {
			keep[b.ranges[i].Source] = true
			next[i] = v
		}
	}
	for i := range b.prev {
		src := b.ranges[i].Source
		if keep[src] {
			continue
		}
		if err := b.cache.CloseDataset(src); err != nil {
			b.log.Warnf("closing %s: %v", src, err)
		}
		keep[src] = true // already closed
	}
	b.prev = next
}

// read returns the rasters of variable for the records in w, with
// their weights, in index order.
func (b *base) read(w datacube.IndexToWeight, variable string, fill float64) ([]*sparse.DenseArray, []float64, error) {
	idx := w.Indices()
	images := make([]*sparse.DenseArray, len(idx))
	weights := make([]float64, len(idx))
	for j, i := range idx {
		if i < 0 || i >= len(b.ranges) {
			return nil, nil, fmt.Errorf("time range index %d out of range", i)
		}
		r := b.ranges[i]
		d, err := b.cache.GetDataset(r.Source)
		if err != nil {
			return nil, nil, err
		}
		if images[j], err = d.ReadRaster(variable, r.Index, fill); err != nil {
			return nil, nil, err
		}
		weights[j] = w[i]
	}
	return images, weights, nil
}

// setRanges sorts and stores the scanned time ranges.
func (b *base) setRanges(ranges []datacube.TimeRange) {
	datacube.SortTimeRanges(ranges)
	b.ranges = ranges
	b.log.Infof("found %d source time ranges (%d entries skipped)", len(ranges), len(b.warnings))
}

// SetMaxOpenDatasets bounds the number of source files the provider
// holds open at once. It must be called before Prepare.
func (b *base) SetMaxOpenDatasets(n int) {
	b.cache = datacube.NewDatasetCache(n)
}
