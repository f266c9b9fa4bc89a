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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetOutput(ioutil.Discard)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func constant(ny, nx int, v float64) *sparse.DenseArray {
	r := sparse.ZerosDense(ny, nx)
	for i := range r.Elements {
		r.Elements[i] = v
	}
	return r
}

// ramp returns a raster whose values increase along both axes.
func ramp(ny, nx int) *sparse.DenseArray {
	r := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			r.Set(float64(10*j+i), j, i)
		}
	}
	return r
}

// writeNC writes variable v as float32 with a -9999 fill value. If
// times is nil, v is two-dimensional and holds records[0].
func writeNC(t *testing.T, path, v string, records []*sparse.DenseArray, times []float64, units string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	ny, nx := records[0].Shape[0], records[0].Shape[1]
	var h *cdf.Header
	if times == nil {
		h = cdf.NewHeader([]string{"lat", "lon"}, []int{ny, nx})
		h.AddVariable(v, []string{"lat", "lon"}, []float32{0})
		records = records[:1]
	} else {
		h = cdf.NewHeader([]string{"time", "lat", "lon"}, []int{len(times), ny, nx})
		h.AddVariable("time", []string{"time"}, []float64{0})
		if units != "" {
			h.AddAttribute("time", "units", units)
		}
		h.AddVariable(v, []string{"time", "lat", "lon"}, []float32{0})
	}
	h.AddAttribute(v, "_FillValue", []float32{-9999})
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

// gzipNC compresses path to path.gz and removes path.
func gzipNC(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path + ".gz")
	if err != nil {
		t.Fatal(err)
	}
	w := gzip.NewWriter(f)
	if _, err = w.Write(b); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
	if err = os.Remove(path); err != nil {
		t.Fatal(err)
	}
}
