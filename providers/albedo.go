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
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/datacube"
)

const (
	albedoVar = "Snow_Fraction"

	// albedoPeriod is the length in days of one composite.
	albedoPeriod = 8

	albedoWidth, albedoHeight = 1440, 720
)

// Albedo reads 8-day snow fraction composites. Each composite is one
// NetCDF file named <prefix>.<YYYYDDD>.<suffix>.nc or .nc.gz, where
// YYYYDDD is the year and day of year of its first day, stored in a
// directory named after its year.
type Albedo struct {
	base
}

// NewAlbedo returns a provider for the albedo archive in dir.
func NewAlbedo(cfg *datacube.CubeConfig, name, dir string) (datacube.SourceProvider, error) {
	return &Albedo{base: newBase(cfg, name, dir)}, nil
}

// Prepare indexes the composites in the years spanned by the cube.
// The cube must be the global 0.25 degree grid.
func (p *Albedo) Prepare() error {
	if !p.cfg.IsGlobalGrid(albedoWidth, albedoHeight) {
		return &datacube.ConfigurationError{
			Provider: p.name,
			Err: fmt.Errorf("grid %dx%d at (%g, %g) is not the global %dx%d grid",
				p.cfg.GridWidth, p.cfg.GridHeight, p.cfg.GridX0, p.cfg.GridY0, albedoWidth, albedoHeight),
		}
	}
	years, err := os.ReadDir(p.dir)
	if err != nil {
		return &datacube.SourceScanError{Path: p.dir, Err: err}
	}
	var ranges []datacube.TimeRange
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		yearDir := filepath.Join(p.dir, y.Name())
		year, err := strconv.Atoi(y.Name())
		if err != nil {
			p.warn(yearDir, fmt.Errorf("directory name is not a year"))
			continue
		}
		if year < p.cfg.StartTime.Year() || year > p.cfg.EndTime.Year() {
			continue
		}
		files, err := os.ReadDir(yearDir)
		if err != nil {
			p.warn(yearDir, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !isNetCDF(f.Name()) {
				continue
			}
			path := filepath.Join(yearDir, f.Name())
			start, err := albedoStart(f.Name())
			if err != nil {
				p.warn(path, err)
				continue
			}
			end := start.AddDate(0, 0, albedoPeriod)
			if !within(start, p.cfg.StartTime, p.cfg.EndTime) && !within(end, p.cfg.StartTime, p.cfg.EndTime) {
				continue
			}
			if err = p.probe(path); err != nil {
				p.warn(path, err)
				continue
			}
			ranges = append(ranges, datacube.TimeRange{Start: start, End: end, Source: path})
		}
	}
	p.setRanges(ranges)
	return nil
}

// albedoStart parses the start date from a composite file name.
func albedoStart(name string) (time.Time, error) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) < 3 || len(parts[1]) != 7 {
		return time.Time{}, fmt.Errorf("no YYYYDDD time code in file name")
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time code %q", parts[1])
	}
	year, day := code/1000, code%1000
	if day < 1 || day > 366 {
		return time.Time{}, fmt.Errorf("invalid day of year in time code %q", parts[1])
	}
	return time.Date(year, 1, day, 0, 0, 0, 0, time.UTC), nil
}

func isNetCDF(name string) bool {
	return strings.HasSuffix(name, ".nc") || strings.HasSuffix(name, ".nc.gz")
}

// within returns whether t is in the closed interval [start, end].
func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func (p *Albedo) descriptor() datacube.VariableDescriptor {
	return datacube.VariableDescriptor{
		DataType:    datacube.Float32,
		FillValue:   -9999,
		Units:       "1",
		LongName:    "Snow Fraction",
		ScaleFactor: 1,
		Resampling:  datacube.Cubic,
	}
}

// VariableDescriptors implements datacube.SourceProvider.
func (p *Albedo) VariableDescriptors() map[string]datacube.VariableDescriptor {
	return map[string]datacube.VariableDescriptor{albedoVar: p.descriptor()}
}

// ComputeVariableImages upsamples each composite with cubic
// convolution and then blends them.
func (p *Albedo) ComputeVariableImages(w datacube.IndexToWeight) (map[string]*sparse.DenseArray, error) {
	p.release(w)
	d := p.descriptor()
	images, weights, err := p.read(w, albedoVar, d.FillValue)
	if err != nil {
		return nil, err
	}
	r, err := datacube.Combine(images, weights, p.cfg.GridWidth, p.cfg.GridHeight,
		d.ResamplingKind(), d.FillValue, datacube.ResampleThenBlend)
	if err != nil {
		return nil, err
	}
	return map[string]*sparse.DenseArray{albedoVar: r}, nil
}
