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

	"github.com/ctessum/sparse"
)

// taps holds the source indices and kernel weights contributing to
// one output coordinate along one axis.
type taps struct {
	nearest int
	idx     []int
	w       []float64
}

// kernel returns the support offsets and weight function of an
// interpolation kind.
func kernel(kind Resampling) (lo, hi int, f func(t float64) float64, err error) {
	switch kind {
	case Nearest:
		return 0, 0, nil, nil
	case Bilinear:
		return 0, 1, func(t float64) float64 { return 1 - math.Abs(t) }, nil
	case Cubic:
		return -1, 2, catmullRom, nil
	}
	return 0, 0, nil, fmt.Errorf("datacube: unknown resampling kind %q", kind)
}

// catmullRom is the cubic convolution kernel with a = -0.5.
func catmullRom(t float64) float64 {
	const a = -0.5
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (a+2)*t*t*t - (a+3)*t*t + 1
	case t < 2:
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	}
	return 0
}

// axisTaps computes the taps of every output pixel along an axis of
// n source pixels resampled to m output pixels. Pixel centres are
// aligned, and indices beyond the edges are clamped.
func axisTaps(n, m, lo, hi int, f func(float64) float64) []taps {
	o := make([]taps, m)
	scale := float64(n) / float64(m)
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}
	for i := range o {
		x := (float64(i)+0.5)*scale - 0.5
		o[i].nearest = clamp(int(math.Floor(x + 0.5)))
		if f == nil {
			continue
		}
		x0 := int(math.Floor(x))
		for k := lo; k <= hi; k++ {
			o[i].idx = append(o[i].idx, clamp(x0+k))
			o[i].w = append(o[i].w, f(x-float64(x0+k)))
		}
	}
	return o
}

// Resample interpolates the two-dimensional raster src onto a grid of
// h rows by w columns covering the same extent.
//
// Pixels equal to fill or NaN are invalid. They are excluded from the
// interpolation kernel and the weights of the remaining neighbours are
// renormalized. An output pixel whose nearest source pixel is invalid
// is set to fill, so fill regions never shrink or grow by more than
// the nearest-neighbour footprint.
func Resample(src *sparse.DenseArray, w, h int, kind Resampling, fill float64) (*sparse.DenseArray, error) {
	if len(src.Shape) != 2 {
		return nil, fmt.Errorf("datacube: resample: raster has %d dimensions, want 2", len(src.Shape))
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("datacube: resample: invalid target size %dx%d", w, h)
	}
	sh, sw := src.Shape[0], src.Shape[1]
	if sh == h && sw == w {
		return src.Copy(), nil
	}
	lo, hi, f, err := kernel(kind)
	if err != nil {
		return nil, err
	}
	valid := func(v float64) bool { return !math.IsNaN(v) && v != fill }

	xt := axisTaps(sw, w, lo, hi, f)
	yt := axisTaps(sh, h, lo, hi, f)
	dst := sparse.ZerosDense(h, w)
	for j, ty := range yt {
		for i, tx := range xt {
			near := src.Elements[ty.nearest*sw+tx.nearest]
			if !valid(near) {
				dst.Elements[j*w+i] = fill
				continue
			}
			if f == nil {
				dst.Elements[j*w+i] = near
				continue
			}
			var sum, wsum float64
			for l, yy := range ty.idx {
				for k, xx := range tx.idx {
					v := src.Elements[yy*sw+xx]
					if !valid(v) {
						continue
					}
					wt := ty.w[l] * tx.w[k]
					sum += wt * v
					wsum += wt
				}
			}
			if math.Abs(wsum) < 1e-9 {
				dst.Elements[j*w+i] = near
				continue
			}
			dst.Elements[j*w+i] = sum / wsum
		}
	}
	return dst, nil
}
