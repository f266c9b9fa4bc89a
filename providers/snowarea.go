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

package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/datacube"
)

const (
	snowAreaVar  = "MFSC"
	snowTimeVar  = "time"
	snowFill     = -9999
	lastMonthLen = 31

	// snowDefaultUnits and snowDefaultShift decode time axes that
	// carry no units attribute.
	snowDefaultUnits = "days since 1582-10-15 00:00:00"
	snowDefaultShift = -14
)

// SnowAreaExtent reads monthly fractional snow cover. Each file in the
// archive directory holds a stack of monthly records along a time
// axis, at a resolution much finer than the cube's.
type SnowAreaExtent struct {
	base
}

// NewSnowAreaExtent returns a provider for the snow cover archive in dir.
func NewSnowAreaExtent(cfg *datacube.CubeConfig, name, dir string) (datacube.SourceProvider, error) {
	return &SnowAreaExtent{base: newBase(cfg, name, dir)}, nil
}

// Prepare indexes every record of every file in the archive. A record
// lasts until the start of the next record in the same file; the last
// record of a file lasts 31 days.
func (p *SnowAreaExtent) Prepare() error {
	files, err := os.ReadDir(p.dir)
	if err != nil {
		return &datacube.SourceScanError{Path: p.dir, Err: err}
	}
	var ranges []datacube.TimeRange
	for _, f := range files {
		if f.IsDir() || !isNetCDF(f.Name()) {
			continue
		}
		path := filepath.Join(p.dir, f.Name())
		r, err := p.scan(path)
		if err != nil {
			p.warn(path, err)
			continue
		}
		ranges = append(ranges, r...)
	}
	p.setRanges(ranges)
	return nil
}

func (p *SnowAreaExtent) scan(path string) ([]datacube.TimeRange, error) {
	d, err := p.cache.GetDataset(path)
	if err != nil {
		return nil, err
	}
	defer p.cache.CloseDataset(path)
	if !d.HasVariable(snowAreaVar) {
		return nil, fmt.Errorf("no variable %s", snowAreaVar)
	}
	times, err := snowTimes(d)
	if err != nil {
		return nil, err
	}
	ranges := make([]datacube.TimeRange, len(times))
	for i, t := range times {
		end := t.AddDate(0, 0, lastMonthLen)
		if i < len(times)-1 {
			end = times[i+1]
		}
		if !end.After(t) {
			return nil, fmt.Errorf("record %d: time axis is not increasing", i)
		}
		ranges[i] = datacube.TimeRange{Start: t, End: end, Source: path, Index: i}
	}
	return ranges, nil
}

func snowTimes(d *datacube.Dataset) ([]time.Time, error) {
	if _, ok := d.Header().GetAttribute(snowTimeVar, "units").(string); ok {
		return d.Times(snowTimeVar)
	}
	vals, err := d.Values(snowTimeVar)
	if err != nil {
		return nil, err
	}
	for i := range vals {
		vals[i] += snowDefaultShift
	}
	return datacube.DecodeTimes(vals, snowDefaultUnits)
}

func (p *SnowAreaExtent) descriptor() datacube.VariableDescriptor {
	return datacube.VariableDescriptor{
		DataType:   datacube.Float32,
		FillValue:  snowFill,
		Units:      "percent",
		LongName:   "Level 3B Fractional Snow Cover (%)  Aggregated Monthly",
		Resampling: datacube.Nearest,
	}
}

// VariableDescriptors implements datacube.SourceProvider.
func (p *SnowAreaExtent) VariableDescriptors() map[string]datacube.VariableDescriptor {
	return map[string]datacube.VariableDescriptor{snowAreaVar: p.descriptor()}
}

// ComputeVariableImages blends the monthly records at their native
// resolution and then takes the nearest native pixel for each cube
// pixel.
func (p *SnowAreaExtent) ComputeVariableImages(w datacube.IndexToWeight) (map[string]*sparse.DenseArray, error) {
	p.release(w)
	d := p.descriptor()
	images, weights, err := p.read(w, snowAreaVar, d.FillValue)
	if err != nil {
		return nil, err
	}
	r, err := datacube.Combine(images, weights, p.cfg.GridWidth, p.cfg.GridHeight,
		d.ResamplingKind(), d.FillValue, datacube.BlendThenResample)
	if err != nil {
		return nil, err
	}
	return map[string]*sparse.DenseArray{snowAreaVar: r}, nil
}
