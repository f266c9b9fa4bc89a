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
	"testing"

	"github.com/ctessum/sparse"
)

func TestBlendWeightedAverage(t *testing.T) {
	a := raster(1, 3, 1, 2, 3)
	b := raster(1, 3, 5, 6, 7)
	r, err := Blend([]*sparse.DenseArray{a, b}, []float64{0.25, 0.75}, fill)
	if err != nil {
		t.Fatal(err)
	}
	compareRasters(t, raster(1, 3, 4, 5, 6), r, 1e-12)
}

func TestBlendUnnormalizedWeights(t *testing.T) {
	a := raster(1, 2, 0, 10)
	b := raster(1, 2, 10, 0)
	r, err := Blend([]*sparse.DenseArray{a, b}, []float64{1, 3}, fill)
	if err != nil {
		t.Fatal(err)
	}
	compareRasters(t, raster(1, 2, 7.5, 2.5), r, 1e-12)
}

func TestBlendFill(t *testing.T) {
	a := raster(1, 3, fill, fill, 1)
	b := raster(1, 3, fill, 4, fill)
	r, err := Blend([]*sparse.DenseArray{a, b}, []float64{0.5, 0.5}, fill)
	if err != nil {
		t.Fatal(err)
	}
	// Invalid inputs drop out of the average.
	compareRasters(t, raster(1, 3, fill, 4, 1), r, 0)
}

func TestBlendManySmallWeights(t *testing.T) {
	const n = 10000
	images := make([]*sparse.DenseArray, n)
	weights := make([]float64, n)
	for i := range images {
		images[i] = raster(1, 1, 0.1)
		weights[i] = 1.0 / n
	}
	r, err := Blend(images, weights, fill)
	if err != nil {
		t.Fatal(err)
	}
	if different(r.Elements[0], 0.1, 1e-12) {
		t.Errorf("have %.17g, want 0.1", r.Elements[0])
	}
}

func TestBlendErrors(t *testing.T) {
	a := raster(1, 2, 1, 2)
	b := raster(2, 1, 1, 2)
	tests := []struct {
		name    string
		images  []*sparse.DenseArray
		weights []float64
	}{
		{name: "empty"},
		{name: "weights", images: []*sparse.DenseArray{a, a}, weights: []float64{1}},
		{name: "negative", images: []*sparse.DenseArray{a, a}, weights: []float64{1, -1}},
		{name: "shape", images: []*sparse.DenseArray{a, b}, weights: []float64{1, 1}},
	}
	for _, test := range tests {
		if _, err := Blend(test.images, test.weights, fill); err == nil {
			t.Errorf("%s: expected an error", test.name)
		}
	}
}

func TestCombineSingle(t *testing.T) {
	src := raster(2, 2, 1, 2, 3, 4)
	want, err := Resample(src, 4, 4, Cubic, fill)
	if err != nil {
		t.Fatal(err)
	}
	// The weight of a single image does not scale it.
	have, err := Combine([]*sparse.DenseArray{src}, []float64{0.3}, 4, 4, Cubic, fill, ResampleThenBlend)
	if err != nil {
		t.Fatal(err)
	}
	compareRasters(t, want, have, 0)
}

func TestCombineOrders(t *testing.T) {
	a := raster(2, 4,
		1, 1, 3, 3,
		1, 1, 3, 3,
	)
	b := raster(2, 4,
		5, 5, 7, 7,
		5, 5, 7, 7,
	)
	want := raster(1, 2, 3, 5)
	for _, order := range []BlendOrder{ResampleThenBlend, BlendThenResample} {
		r, err := Combine([]*sparse.DenseArray{a, b}, []float64{0.5, 0.5}, 2, 1, Nearest, fill, order)
		if err != nil {
			t.Fatal(err)
		}
		compareRasters(t, want, r, 1e-12)
	}
}

func TestCombineFillPropagation(t *testing.T) {
	a := raster(2, 2, fill, 1, 1, 1)
	b := raster(2, 2, fill, 2, 2, 2)
	for _, order := range []BlendOrder{ResampleThenBlend, BlendThenResample} {
		for _, kind := range []Resampling{Nearest, Bilinear, Cubic} {
			r, err := Combine([]*sparse.DenseArray{a, b}, []float64{0.5, 0.5}, 4, 4, kind, fill, order)
			if err != nil {
				t.Fatal(err)
			}
			for _, p := range [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
				if v := r.Get(p[0], p[1]); v != fill {
					t.Errorf("%v %s: (%d, %d) = %g, want fill", order, kind, p[0], p[1], v)
				}
			}
		}
	}
}
