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
	"math"
)

// Resampling is the interpolation kind used to bring a source raster
// onto the cube grid.
type Resampling string

// Available resampling kinds.
const (
	// Nearest picks the closest source pixel. Fill values propagate
	// unchanged, which makes it the choice for downsampling very large
	// native grids.
	Nearest Resampling = "nearest"
	// Bilinear interpolates linearly between the four surrounding pixels.
	Bilinear Resampling = "bilinear"
	// Cubic uses a Catmull-Rom cubic convolution kernel over the
	// surrounding 4x4 pixels. It is intended for continuous-valued,
	// coarse-to-fine upsampling.
	Cubic Resampling = "cubic"
)

// Data types a cube variable can be stored as.
const (
	Float32 = "float32"
	Float64 = "float64"
	Int16   = "int16"
	Int32   = "int32"
	Uint8   = "uint8"
)

// VariableDescriptor describes how a cube variable is stored and how
// its on-disk values decode to physical values:
//
//	physical = packed * ScaleFactor + AddOffset
//
// FillValue is the sentinel marking invalid positions. It is stored
// as-is on disk and is carried unchanged in computed rasters. A zero
// ScaleFactor is treated as 1.
type VariableDescriptor struct {
	DataType    string     `toml:"data_type" validate:"oneof=float32 float64 int16 int32 uint8"`
	FillValue   float64    `toml:"fill_value"`
	Units       string     `toml:"units"`
	LongName    string     `toml:"long_name"`
	ScaleFactor float64    `toml:"scale_factor"`
	AddOffset   float64    `toml:"add_offset"`
	Resampling  Resampling `toml:"resampling" validate:"omitempty,oneof=nearest bilinear cubic"`
}

// Valid returns whether v is a valid (non-fill, non-NaN) physical value.
func (d VariableDescriptor) Valid(v float64) bool {
	return !math.IsNaN(v) && v != d.FillValue
}

func (d VariableDescriptor) scale() float64 {
	if d.ScaleFactor == 0 {
		return 1
	}
	return d.ScaleFactor
}

// ResamplingKind returns the resampling kind of d, defaulting to Nearest.
func (d VariableDescriptor) ResamplingKind() Resampling {
	if d.Resampling == "" {
		return Nearest
	}
	return d.Resampling
}

// normalized returns d with its defaults made explicit, so that
// descriptors with the same meaning compare equal.
func (d VariableDescriptor) normalized() VariableDescriptor {
	d.ScaleFactor = d.scale()
	d.Resampling = d.ResamplingKind()
	return d
}

// zero returns an empty slice of length n of the type that
// github.com/ctessum/cdf uses for the descriptor's data type.
func (d VariableDescriptor) zero(n int) (interface{}, error) {
	switch d.DataType {
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	case Int16:
		return make([]int16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Uint8:
		return make([]uint8, n), nil
	}
	return nil, fmt.Errorf("datacube: unsupported data type %q", d.DataType)
}

// checkFill returns an error if FillValue cannot be stored exactly in
// the descriptor's data type, in which case stored fill values would
// not decode back to FillValue.
func (d VariableDescriptor) checkFill() error {
	v := d.FillValue
	var lo, hi float64
	switch d.DataType {
	case Float64:
		return nil
	case Float32:
		if math.IsNaN(v) || float64(float32(v)) == v {
			return nil
		}
		return fmt.Errorf("fill value %g is not representable as float32", v)
	case Int16:
		lo, hi = math.MinInt16, math.MaxInt16
	case Int32:
		lo, hi = math.MinInt32, math.MaxInt32
	case Uint8:
		lo, hi = 0, math.MaxUint8
	default:
		return fmt.Errorf("unsupported data type %q", d.DataType)
	}
	if math.IsNaN(v) || v != math.Trunc(v) || v < lo || v > hi {
		return fmt.Errorf("fill value %g is not representable as %s", v, d.DataType)
	}
	return nil
}

// fillAttribute returns the _FillValue attribute value in the
// descriptor's data type.
func (d VariableDescriptor) fillAttribute() (interface{}, error) {
	v, err := d.zero(1)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []float32:
		vv[0] = float32(d.FillValue)
	case []float64:
		vv[0] = d.FillValue
	case []int16:
		vv[0] = int16(d.FillValue)
	case []int32:
		vv[0] = int32(d.FillValue)
	case []uint8:
		vv[0] = uint8(d.FillValue)
	}
	return v, nil
}

// Pack encodes physical values into the descriptor's storage type.
// Invalid values are stored as the fill value; integer values are
// rounded and clamped to the range of the type. A valid value whose
// encoding would equal the fill value is stored as the adjacent
// representable value instead, so that it still decodes as valid.
// The fill value must be representable in the storage type.
func (d VariableDescriptor) Pack(phys []float64) (interface{}, error) {
	if err := d.checkFill(); err != nil {
		return nil, fmt.Errorf("datacube: %v", err)
	}
	out, err := d.zero(len(phys))
	if err != nil {
		return nil, err
	}
	s, o := d.scale(), d.AddOffset
	packed := func(v float64, lo, hi float64) float64 {
		if !d.Valid(v) {
			return d.FillValue
		}
		p := math.Max(lo, math.Min(hi, math.Floor((v-o)/s+0.5)))
		if p == d.FillValue {
			if (v-o)/s < p && p > lo || p == hi {
				return p - 1
			}
			return p + 1
		}
		return p
	}
	fill32 := float32(d.FillValue)
	switch vv := out.(type) {
	case []float32:
		for i, v := range phys {
			if !d.Valid(v) {
				vv[i] = fill32
				continue
			}
			vv[i] = float32((v - o) / s)
			if vv[i] == fill32 {
				vv[i] = math.Nextafter32(fill32, float32(math.Inf(1)))
			}
		}
	case []float64:
		for i, v := range phys {
			if !d.Valid(v) {
				vv[i] = d.FillValue
				continue
			}
			vv[i] = (v - o) / s
			if vv[i] == d.FillValue {
				vv[i] = math.Nextafter(d.FillValue, math.Inf(1))
			}
		}
	case []int16:
		for i, v := range phys {
			vv[i] = int16(packed(v, math.MinInt16, math.MaxInt16))
		}
	case []int32:
		for i, v := range phys {
			vv[i] = int32(packed(v, math.MinInt32, math.MaxInt32))
		}
	case []uint8:
		for i, v := range phys {
			vv[i] = uint8(packed(v, 0, math.MaxUint8))
		}
	}
	return out, nil
}

// Unpack decodes stored values into physical values in dst, which must
// have the same length as packed.
func (d VariableDescriptor) Unpack(packed interface{}, dst []float64) error {
	s, o := d.scale(), d.AddOffset
	set := func(i int, v float64) {
		if v == d.FillValue || math.IsNaN(v) {
			dst[i] = d.FillValue
			return
		}
		dst[i] = v*s + o
	}
	switch vv := packed.(type) {
	case []float32:
		if len(vv) != len(dst) {
			return fmt.Errorf("datacube: unpacking %d values into %d", len(vv), len(dst))
		}
		fill32 := float32(d.FillValue)
		for i, v := range vv {
			if v == fill32 {
				dst[i] = d.FillValue
				continue
			}
			set(i, float64(v))
		}
	case []float64:
		if len(vv) != len(dst) {
			return fmt.Errorf("datacube: unpacking %d values into %d", len(vv), len(dst))
		}
		for i, v := range vv {
			set(i, v)
		}
	case []int16:
		if len(vv) != len(dst) {
			return fmt.Errorf("datacube: unpacking %d values into %d", len(vv), len(dst))
		}
		for i, v := range vv {
			set(i, float64(v))
		}
	case []int32:
		if len(vv) != len(dst) {
			return fmt.Errorf("datacube: unpacking %d values into %d", len(vv), len(dst))
		}
		for i, v := range vv {
			set(i, float64(v))
		}
	case []uint8:
		if len(vv) != len(dst) {
			return fmt.Errorf("datacube: unpacking %d values into %d", len(vv), len(dst))
		}
		for i, v := range vv {
			set(i, float64(v))
		}
	default:
		return fmt.Errorf("datacube: cannot unpack values of type %T", packed)
	}
	return nil
}
