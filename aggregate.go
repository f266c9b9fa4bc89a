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
	"gonum.org/v1/gonum/floats"
)

// BlendOrder selects whether source rasters are resampled before or
// after they are blended together.
type BlendOrder int

const (
	// ResampleThenBlend brings every source raster onto the cube grid
	// first. Use it when source resolutions can differ between records.
	ResampleThenBlend BlendOrder = iota

	// BlendThenResample blends at native resolution and resamples the
	// result once. All source rasters must have the same shape.
	BlendThenResample
)

func (o BlendOrder) String() string {
	switch o {
	case ResampleThenBlend:
		return "resample-then-blend"
	case BlendThenResample:
		return "blend-then-resample"
	}
	return fmt.Sprintf("BlendOrder(%d)", int(o))
}

// Blend returns the weighted average of images:
//
//	sum(weights[i] * images[i]) / sum(weights[i])
//
// computed separately for each pixel over the images that are valid
// there. Pixels where no image is valid are set to fill. All images
// must have the same shape and weights must be non-negative.
func Blend(images []*sparse.DenseArray, weights []float64, fill float64) (*sparse.DenseArray, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("datacube: blend: no images")
	}
	if len(images) != len(weights) {
		return nil, fmt.Errorf("datacube: blend: %d images but %d weights", len(images), len(weights))
	}
	if floats.Min(weights) < 0 {
		return nil, fmt.Errorf("datacube: blend: negative weight in %v", weights)
	}
	shape := images[0].Shape
	for i, im := range images[1:] {
		if !sameShape(shape, im.Shape) {
			return nil, fmt.Errorf("datacube: blend: image %d has shape %v, want %v", i+1, im.Shape, shape)
		}
	}
	dst := sparse.ZerosDense(shape...)
	for p := range dst.Elements {
		var sum, wsum float64
		for i, im := range images {
			v := im.Elements[p]
			if math.IsNaN(v) || v == fill {
				continue
			}
			sum += weights[i] * v
			wsum += weights[i]
		}
		if wsum == 0 {
			dst.Elements[p] = fill
			continue
		}
		dst.Elements[p] = sum / wsum
	}
	return dst, nil
}

// Combine produces a raster of h rows by w columns from one or more
// weighted source images. A single image is resampled without any
// blending arithmetic; otherwise images are resampled and blended in
// the given order.
func Combine(images []*sparse.DenseArray, weights []float64, w, h int, kind Resampling, fill float64, order BlendOrder) (*sparse.DenseArray, error) {
	switch len(images) {
	case 0:
		return nil, fmt.Errorf("datacube: combine: no images")
	case 1:
		return Resample(images[0], w, h, kind, fill)
	}
	switch order {
	case ResampleThenBlend:
		resampled := make([]*sparse.DenseArray, len(images))
		for i, im := range images {
			r, err := Resample(im, w, h, kind, fill)
			if err != nil {
				return nil, err
			}
			resampled[i] = r
		}
		return Blend(resampled, weights, fill)
	case BlendThenResample:
		b, err := Blend(images, weights, fill)
		if err != nil {
			return nil, err
		}
		return Resample(b, w, h, kind, fill)
	}
	return nil, fmt.Errorf("datacube: combine: unknown blend order %v", order)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
