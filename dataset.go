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
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/klauspost/compress/gzip"
)

// Dataset is an open NetCDF source file.
type Dataset struct {
	// Ref is the path the dataset was opened from.
	Ref string

	f    *os.File
	size int64
	nc   *cdf.File

	// tmp is the path of the decompressed copy of a gzipped source,
	// removed when the dataset is closed.
	tmp string
}

// OpenDataset opens the NetCDF file at ref. Files whose names end in
// ".gz" are decompressed to a temporary file first.
func OpenDataset(ref string) (*Dataset, error) {
	d := &Dataset{Ref: ref}
	path := ref
	if strings.HasSuffix(ref, ".gz") {
		tmp, err := gunzip(ref)
		if err != nil {
			return nil, err
		}
		d.tmp = tmp
		path = tmp
	}
	f, err := os.Open(path)
	if err != nil {
		d.removeTemp()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		d.removeTemp()
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		d.removeTemp()
		return nil, fmt.Errorf("datacube: opening %s: %v", ref, err)
	}
	d.f, d.size, d.nc = f, fi.Size(), nc
	return d, nil
}

func gunzip(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("datacube: decompressing %s: %v", path, err)
	}
	defer gz.Close()
	out, err := os.CreateTemp("", strings.TrimSuffix(filepath.Base(path), ".gz")+".*")
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(out, gz); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("datacube: decompressing %s: %v", path, err)
	}
	if err = out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func (d *Dataset) removeTemp() {
	if d.tmp != "" {
		os.Remove(d.tmp)
		d.tmp = ""
	}
}

// Close releases the file handle and any temporary copy.
func (d *Dataset) Close() error {
	var err error
	if d.f != nil {
		err = d.f.Close()
		d.f, d.nc = nil, nil
	}
	d.removeTemp()
	return err
}

// Header returns the NetCDF header of the dataset.
func (d *Dataset) Header() *cdf.Header { return d.nc.Header }

// HasVariable returns whether the dataset contains variable v.
func (d *Dataset) HasVariable(v string) bool {
	return d.nc.Header.Lengths(v) != nil
}

// Shape returns the dimension lengths of variable v. The length of a
// record dimension is the number of records in the file.
func (d *Dataset) Shape(v string) ([]int, error) {
	l := d.nc.Header.Lengths(v)
	if l == nil {
		return nil, fmt.Errorf("datacube: %s: no variable %q", d.Ref, v)
	}
	s := append([]int{}, l...)
	if d.nc.Header.IsRecordVariable(v) {
		s[0] = int(d.nc.Header.NumRecs(d.size))
	}
	return s, nil
}

// ReadRaster reads one two-dimensional slice of variable v. If v has
// three dimensions, record is the index along the first one; otherwise
// it must be zero. Values are decoded with the variable's scale_factor
// and add_offset attributes, and values equal to its _FillValue or
// missing_value attribute are set to fill.
func (d *Dataset) ReadRaster(v string, record int, fill float64) (*sparse.DenseArray, error) {
	shape, err := d.Shape(v)
	if err != nil {
		return nil, err
	}
	var begin, end []int
	var ny, nx int
	switch len(shape) {
	case 2:
		if record != 0 {
			return nil, fmt.Errorf("datacube: %s: variable %q has no record %d", d.Ref, v, record)
		}
		ny, nx = shape[0], shape[1]
		begin, end = []int{0, 0}, []int{ny - 1, nx - 1}
	case 3:
		if record < 0 || record >= shape[0] {
			return nil, fmt.Errorf("datacube: %s: variable %q record %d out of range [0, %d)", d.Ref, v, record, shape[0])
		}
		ny, nx = shape[1], shape[2]
		begin, end = []int{record, 0, 0}, []int{record, ny - 1, nx - 1}
	default:
		return nil, fmt.Errorf("datacube: %s: variable %q has %d dimensions, want 2 or 3", d.Ref, v, len(shape))
	}
	vals, err := d.read(v, begin, end, ny*nx)
	if err != nil {
		return nil, err
	}
	o := sparse.ZerosDense(ny, nx)
	o.Elements = vals
	d.decode(v, o.Elements, fill)
	return o, nil
}

// read reads n values of variable v between the inclusive corners
// begin and end and converts them to float64.
func (d *Dataset) read(v string, begin, end []int, n int) ([]float64, error) {
	r := d.nc.Reader(v, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("datacube: %s: reading %q: %v", d.Ref, v, err)
	}
	return toFloat64(buf)
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	}
	return nil, fmt.Errorf("datacube: unsupported NetCDF value type %T", buf)
}

// attrFloat returns the first value of a numeric attribute.
func (d *Dataset) attrFloat(v, a string) (float64, bool) {
	att := d.nc.Header.GetAttribute(v, a)
	if att == nil {
		return 0, false
	}
	vals, err := toFloat64(att)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func (d *Dataset) decode(v string, vals []float64, fill float64) {
	scale, ok := d.attrFloat(v, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := d.attrFloat(v, "add_offset")
	srcFill, hasFill := d.attrFloat(v, "_FillValue")
	missing, hasMissing := d.attrFloat(v, "missing_value")
	for i, x := range vals {
		if math.IsNaN(x) || (hasFill && x == srcFill) || (hasMissing && x == missing) {
			vals[i] = fill
			continue
		}
		vals[i] = x*scale + offset
	}
}

// Values reads all values of the one-dimensional variable v.
func (d *Dataset) Values(v string) ([]float64, error) {
	shape, err := d.Shape(v)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("datacube: %s: variable %q has %d dimensions, want 1", d.Ref, v, len(shape))
	}
	if shape[0] == 0 {
		return nil, nil
	}
	return d.read(v, []int{0}, []int{shape[0] - 1}, shape[0])
}

// Times decodes the time coordinate variable v using its CF
// "<unit> since <date>" units attribute.
func (d *Dataset) Times(v string) ([]time.Time, error) {
	units, ok := d.nc.Header.GetAttribute(v, "units").(string)
	if !ok {
		return nil, fmt.Errorf("datacube: %s: variable %q has no units attribute", d.Ref, v)
	}
	vals, err := d.Values(v)
	if err != nil {
		return nil, err
	}
	return DecodeTimes(vals, units)
}

var timeUnits = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
}

var refTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
}

// DecodeTimes converts time values in CF units of the form
// "days since 2000-01-01 00:00:00" to calendar times in UTC.
func DecodeTimes(vals []float64, units string) ([]time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("datacube: invalid time units %q", units)
	}
	secs, ok := timeUnits[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return nil, fmt.Errorf("datacube: invalid time unit %q", parts[0])
	}
	ref := strings.TrimSuffix(strings.TrimSpace(parts[1]), " UTC")
	var base time.Time
	var err error
	for _, layout := range refTimeLayouts {
		if base, err = time.ParseInLocation(layout, ref, time.UTC); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("datacube: invalid reference time %q", ref)
	}
	o := make([]time.Time, len(vals))
	for i, v := range vals {
		// Whole days are added separately since time.Duration
		// overflows at about 292 years.
		s := v * secs
		days := math.Floor(s / 86400)
		o[i] = base.AddDate(0, 0, int(days)).Add(time.Duration((s - days*86400) * float64(time.Second)))
	}
	return o, nil
}
