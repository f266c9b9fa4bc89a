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
	"testing"
)

func TestPackUnpack(t *testing.T) {
	tests := []struct {
		desc VariableDescriptor
		in   []float64
		want []float64
	}{
		{
			desc: VariableDescriptor{DataType: Float32, FillValue: -9999},
			in:   []float64{0.5, -9999, math.NaN(), 1e3},
			want: []float64{0.5, -9999, -9999, 1e3},
		},
		{
			desc: VariableDescriptor{DataType: Float64, FillValue: -1, ScaleFactor: 2, AddOffset: 1},
			in:   []float64{3, -1, 0.1},
			want: []float64{3, -1, 0.1},
		},
		{
			desc: VariableDescriptor{DataType: Int16, FillValue: -32768, ScaleFactor: 0.01, AddOffset: 273.15},
			in:   []float64{273.15, 300, -32768, 1e9},
			want: []float64{273.15, 300, -32768, 32767*0.01 + 273.15},
		},
		{
			desc: VariableDescriptor{DataType: Int32, FillValue: 0},
			in:   []float64{1.4, 1.6, -2.5, 0},
			want: []float64{1, 2, -2, 0},
		},
		{
			desc: VariableDescriptor{DataType: Uint8, FillValue: 255},
			in:   []float64{-3, 10, 300, 255, math.NaN()},
			want: []float64{0, 10, 254, 255, 255},
		},
		{
			// Valid values that round onto the fill value move to
			// the neighbouring stored value.
			desc: VariableDescriptor{DataType: Uint8, FillValue: 0, AddOffset: -10},
			in:   []float64{-10, -9.8, -5, 0},
			want: []float64{-9, -9, -5, 0},
		},
		{
			desc: VariableDescriptor{DataType: Float32, FillValue: -9999, AddOffset: 1},
			in:   []float64{-9998, -9999},
			want: []float64{-9998, -9999},
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, test.desc.DataType), func(t *testing.T) {
			packed, err := test.desc.Pack(test.in)
			if err != nil {
				t.Fatal(err)
			}
			have := make([]float64, len(test.in))
			if err = test.desc.Unpack(packed, have); err != nil {
				t.Fatal(err)
			}
			for i, w := range test.want {
				if different(w, have[i], 1e-6) {
					t.Errorf("element %d: have %g, want %g", i, have[i], w)
				}
				if test.desc.Valid(test.in[i]) != test.desc.Valid(have[i]) {
					t.Errorf("element %d: validity of %g changed to that of %g", i, test.in[i], have[i])
				}
			}
		})
	}
}

func TestDescriptorDefaults(t *testing.T) {
	a := VariableDescriptor{DataType: Float32}
	b := VariableDescriptor{DataType: Float32, ScaleFactor: 1, Resampling: Nearest}
	if a.normalized() != b.normalized() {
		t.Error("default scale factor and resampling should be 1 and nearest")
	}
	if _, err := (VariableDescriptor{DataType: "string"}).Pack([]float64{1}); err == nil {
		t.Error("unsupported type should fail")
	}
}

func TestCheckFill(t *testing.T) {
	tests := []struct {
		desc VariableDescriptor
		ok   bool
	}{
		{desc: VariableDescriptor{DataType: Uint8, FillValue: 255}, ok: true},
		{desc: VariableDescriptor{DataType: Uint8, FillValue: -1}},
		{desc: VariableDescriptor{DataType: Uint8, FillValue: 256}},
		{desc: VariableDescriptor{DataType: Int16, FillValue: -32768}, ok: true},
		{desc: VariableDescriptor{DataType: Int16, FillValue: -99999}},
		{desc: VariableDescriptor{DataType: Int32, FillValue: 1.5}},
		{desc: VariableDescriptor{DataType: Int32, FillValue: math.NaN()}},
		{desc: VariableDescriptor{DataType: Float32, FillValue: -9999}, ok: true},
		{desc: VariableDescriptor{DataType: Float32, FillValue: 0.1}},
		{desc: VariableDescriptor{DataType: Float64, FillValue: 0.1}, ok: true},
	}
	for _, test := range tests {
		err := test.desc.checkFill()
		if (err == nil) != test.ok {
			t.Errorf("%s fill %g: have error %v, want ok %v", test.desc.DataType, test.desc.FillValue, err, test.ok)
		}
		if _, err = test.desc.Pack([]float64{test.desc.FillValue, 3}); (err == nil) != test.ok {
			t.Errorf("%s fill %g: Pack error %v, want ok %v", test.desc.DataType, test.desc.FillValue, err, test.ok)
		}
	}
}
