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
	"io"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/spatialmodel/datacube/internal/hash"
)

const dateFormat = "2006-01-02"

var validate = validator.New()

// CubeConfig defines the temporal and spatial grid of a cube and the
// variables it holds. A CubeConfig must not be changed once a cube has
// been created with it.
//
// The temporal axis is divided into cells of TemporalResolution days
// starting at StartTime; the last cell is clipped to EndTime. The
// spatial grid is GridWidth by GridHeight square pixels of
// SpatialResolution degrees, with the north-west corner at
// (GridX0, GridY0). Row 0 of every raster is the northernmost row.
type CubeConfig struct {
	StartTime          time.Time `toml:"start_time"`
	EndTime            time.Time `toml:"end_time" validate:"gtfield=StartTime"`
	TemporalResolution int       `toml:"temporal_resolution" validate:"gt=0"`

	GridX0            float64 `toml:"grid_x0" validate:"gte=-180,lte=180"`
	GridY0            float64 `toml:"grid_y0" validate:"gte=-90,lte=90"`
	GridWidth         int     `toml:"grid_width" validate:"gt=0"`
	GridHeight        int     `toml:"grid_height" validate:"gt=0"`
	SpatialResolution float64 `toml:"spatial_resolution" validate:"gt=0"`

	// Variables is the variable registry of the cube. If it is not
	// empty it is the closed set of variables the cube accepts, and
	// providers must declare identical descriptors for them.
	Variables map[string]VariableDescriptor `toml:"variables" validate:"dive"`
}

// DefaultConfig returns the configuration of a global 0.25 degree
// cube with 8-day cells from 2001 through 2010.
func DefaultConfig() *CubeConfig {
	return &CubeConfig{
		StartTime:          time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:            time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC),
		TemporalResolution: 8,
		GridX0:             -180,
		GridY0:             90,
		GridWidth:          1440,
		GridHeight:         720,
		SpatialResolution:  0.25,
	}
}

// Validate checks that the configuration describes a usable cube.
func (c *CubeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("datacube: invalid cube configuration: %v", err)
	}
	if c.GridX0+float64(c.GridWidth)*c.SpatialResolution > 180+1e-9 {
		return fmt.Errorf("datacube: invalid cube configuration: grid extends east of 180°")
	}
	if c.GridY0-float64(c.GridHeight)*c.SpatialResolution < -90-1e-9 {
		return fmt.Errorf("datacube: invalid cube configuration: grid extends south of -90°")
	}
	for name, d := range c.Variables {
		if err := d.checkFill(); err != nil {
			return fmt.Errorf("datacube: invalid cube configuration: variable %s: %v", name, err)
		}
	}
	return nil
}

// NumCells returns the number of temporal cells in the cube.
func (c *CubeConfig) NumCells() int {
	n := 0
	for t := c.StartTime; t.Before(c.EndTime); t = t.AddDate(0, 0, c.TemporalResolution) {
		n++
	}
	return n
}

// CellInterval returns the half-open interval [start, end) covered by
// temporal cell i.
func (c *CubeConfig) CellInterval(i int) (start, end time.Time) {
	start = c.StartTime.AddDate(0, 0, i*c.TemporalResolution)
	end = start.AddDate(0, 0, c.TemporalResolution)
	if end.After(c.EndTime) {
		end = c.EndTime
	}
	return start, end
}

// Coverage returns the bounding box of the cube grid.
func (c *CubeConfig) Coverage() Coverage {
	return Coverage{
		West:  c.GridX0,
		East:  c.GridX0 + float64(c.GridWidth)*c.SpatialResolution,
		North: c.GridY0,
		South: c.GridY0 - float64(c.GridHeight)*c.SpatialResolution,
	}
}

// Lons returns the longitudes of the pixel centres, west to east.
func (c *CubeConfig) Lons() []float64 {
	o := make([]float64, c.GridWidth)
	for i := range o {
		o[i] = c.GridX0 + (float64(i)+0.5)*c.SpatialResolution
	}
	return o
}

// Lats returns the latitudes of the pixel centres, north to south.
func (c *CubeConfig) Lats() []float64 {
	o := make([]float64, c.GridHeight)
	for i := range o {
		o[i] = c.GridY0 - (float64(i)+0.5)*c.SpatialResolution
	}
	return o
}

// IsGlobalGrid returns whether the grid has the given dimensions and
// covers the whole globe.
func (c *CubeConfig) IsGlobalGrid(width, height int) bool {
	return c.GridWidth == width && c.GridHeight == height &&
		math.Abs(c.GridX0+180) < 1e-9 && math.Abs(c.GridY0-90) < 1e-9
}

// Fingerprint returns a key that differs between configurations that
// would produce different cubes.
func (c *CubeConfig) Fingerprint() string {
	cc := *c
	cc.StartTime, cc.EndTime = c.StartTime.UTC(), c.EndTime.UTC()
	if len(cc.Variables) == 0 {
		cc.Variables = nil
	}
	return hash.Hash(&cc)
}

// ReadConfig reads a TOML-formatted cube configuration from r.
func ReadConfig(r io.Reader) (*CubeConfig, error) {
	c := new(CubeConfig)
	if _, err := toml.DecodeReader(r, c); err != nil {
		return nil, fmt.Errorf("datacube: reading cube configuration: %v", err)
	}
	return c, nil
}

// LoadConfig reads a TOML-formatted cube configuration from the
// file at path.
func LoadConfig(path string) (*CubeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datacube: loading cube configuration: %v", err)
	}
	defer f.Close()
	return ReadConfig(f)
}

// Write writes c to w in TOML format.
func (c *CubeConfig) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("datacube: writing cube configuration: %v", err)
	}
	return nil
}
