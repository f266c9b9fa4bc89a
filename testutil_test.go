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
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

func different(a, b, tolerance float64) bool {
	if a == b {
		return false
	}
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// testConfig returns a global 90° grid of 4x2 pixels with two 8-day
// cells starting on 2000-01-01.
func testConfig() *CubeConfig {
	return &CubeConfig{
		StartTime:          date(2000, 1, 1),
		EndTime:            date(2000, 1, 17),
		TemporalResolution: 8,
		GridX0:             -180,
		GridY0:             90,
		GridWidth:          4,
		GridHeight:         2,
		SpatialResolution:  90,
	}
}

func raster(ny, nx int, vals ...float64) *sparse.DenseArray {
	r := sparse.ZerosDense(ny, nx)
	if len(vals) != ny*nx {
		panic(fmt.Errorf("raster: %d values for %dx%d", len(vals), ny, nx))
	}
	copy(r.Elements, vals)
	return r
}

func compareRasters(t *testing.T, want, have *sparse.DenseArray, tolerance float64) {
	t.Helper()
	if !sameShape(want.Shape, have.Shape) {
		t.Fatalf("shape: want %v, have %v", want.Shape, have.Shape)
	}
	for i, w := range want.Elements {
		if different(w, have.Elements[i], tolerance) {
			t.Errorf("element %d: want %g, have %g", i, w, have.Elements[i])
		}
	}
}

// writeSource writes a float32 NetCDF file holding variable v. If
// times is nil, v is two-dimensional and only records[0] is written;
// otherwise v has a leading time dimension with units timeUnits.
func writeSource(t *testing.T, path, v string, records []*sparse.DenseArray, fill float32, times []float64, timeUnits string) {
	t.Helper()
	ny, nx := records[0].Shape[0], records[0].Shape[1]
	var h *cdf.Header
	if times == nil {
		h = cdf.NewHeader([]string{"lat", "lon"}, []int{ny, nx})
		h.AddVariable(v, []string{"lat", "lon"}, []float32{0})
		records = records[:1]
	} else {
		h = cdf.NewHeader([]string{"time", "lat", "lon"}, []int{len(times), ny, nx})
		h.AddVariable("time", []string{"time"}, []float64{0})
		if timeUnits != "" {
			h.AddAttribute("time", "units", timeUnits)
		}
		h.AddVariable(v, []string{"time", "lat", "lon"}, []float32{0})
	}
	h.AddAttribute(v, "_FillValue", []float32{fill})
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	var data []float32
	for _, r := range records {
		for _, x := range r.Elements {
			data = append(data, float32(x))
		}
	}
	if _, err = nc.Writer(v, nil, nil).Write(data); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if times != nil {
		if _, err = nc.Writer("time", nil, nil).Write(times); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
}

// memProvider serves in-memory rasters, one per time range.
type memProvider struct {
	name     string
	cfg      *CubeConfig
	desc     VariableDescriptor
	ranges   []TimeRange
	images   []*sparse.DenseArray
	order    BlendOrder
	coverage Coverage

	prepareErr error
	// failIndex makes any compute call including this index fail.
	failIndex int

	prepared bool
	calls    []IndexToWeight
	closed   bool
}

func newMemProvider(cfg *CubeConfig, ranges []TimeRange, images ...*sparse.DenseArray) *memProvider {
	return &memProvider{
		name:      "mem",
		cfg:       cfg,
		desc:      VariableDescriptor{DataType: Float32, FillValue: -9999, Units: "1", LongName: "test"},
		ranges:    ranges,
		images:    images,
		coverage:  GlobalCoverage,
		failIndex: -1,
	}
}

func (p *memProvider) Name() string { return p.name }

func (p *memProvider) Prepare() error {
	p.prepared = true
	return p.prepareErr
}

func (p *memProvider) VariableDescriptors() map[string]VariableDescriptor {
	return map[string]VariableDescriptor{"v": p.desc}
}

func (p *memProvider) SourceTimeRanges() []TimeRange { return p.ranges }

func (p *memProvider) SpatialCoverage() Coverage { return p.coverage }

func (p *memProvider) ComputeVariableImages(w IndexToWeight) (map[string]*sparse.DenseArray, error) {
	p.calls = append(p.calls, w)
	if _, ok := w[p.failIndex]; ok {
		return nil, fmt.Errorf("index %d is broken", p.failIndex)
	}
	var images []*sparse.DenseArray
	var weights []float64
	for _, i := range w.Indices() {
		images = append(images, p.images[i])
		weights = append(weights, w[i])
	}
	r, err := Combine(images, weights, p.cfg.GridWidth, p.cfg.GridHeight, p.desc.ResamplingKind(), p.desc.FillValue, p.order)
	if err != nil {
		return nil, err
	}
	return map[string]*sparse.DenseArray{"v": r}, nil
}

func (p *memProvider) Close() error {
	p.closed = true
	return nil
}
