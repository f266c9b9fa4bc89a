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
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ConfigFileName is the name of the configuration file in a cube directory.
const ConfigFileName = "cube.toml"

const (
	dataDirName = "data"

	// filledVar flags the time steps of a variable file that have
	// been written. It is the last variable in the file so that
	// filling it at creation extends the file to its full size.
	filledVar = "cell_filled"

	fingerprintAttr = "datacube_config"
)

// varFile is the NetCDF file storing one cube variable, with
// dimensions time x lat x lon.
type varFile struct {
	name string
	desc VariableDescriptor
	path string
	f    *os.File
	nc   *cdf.File
	ny   int
	nx   int
}

func varFilePath(dir, name string) string {
	return filepath.Join(dir, dataDirName, name+".nc")
}

// createVarFile creates the file for variable name with all time
// steps unfilled.
func createVarFile(dir, name string, desc VariableDescriptor, cfg *CubeConfig) (*varFile, error) {
	zero, err := desc.zero(1)
	if err != nil {
		return nil, err
	}
	fillAttr, err := desc.fillAttribute()
	if err != nil {
		return nil, err
	}
	nt := cfg.NumCells()
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, cfg.GridHeight, cfg.GridWidth})
	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddAttribute("", fingerprintAttr, cfg.Fingerprint())

	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "days since "+cfg.StartTime.UTC().Format("2006-01-02 15:04:05"))
	h.AddAttribute("time", "calendar", "gregorian")

	h.AddVariable(name, []string{"time", "lat", "lon"}, zero)
	h.AddAttribute(name, "_FillValue", fillAttr)
	h.AddAttribute(name, "fill_value", []float64{desc.FillValue})
	h.AddAttribute(name, "scale_factor", []float64{desc.scale()})
	h.AddAttribute(name, "add_offset", []float64{desc.AddOffset})
	if desc.Units != "" {
		h.AddAttribute(name, "units", desc.Units)
	}
	if desc.LongName != "" {
		h.AddAttribute(name, "long_name", desc.LongName)
	}
	h.AddAttribute(name, "resampling", string(desc.ResamplingKind()))

	h.AddVariable(filledVar, []string{"time"}, []uint8{0})
	h.AddAttribute(filledVar, "_FillValue", []uint8{0})
	h.Define()

	path := varFilePath(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	v := &varFile{name: name, desc: desc, path: path, f: f, nc: nc, ny: cfg.GridHeight, nx: cfg.GridWidth}
	if err = nc.Fill(filledVar); err != nil {
		f.Close()
		return nil, err
	}
	times := make([]float64, nt)
	for i := range times {
		s, _ := cfg.CellInterval(i)
		times[i] = s.Sub(cfg.StartTime).Hours() / 24
	}
	for _, c := range []struct {
		name string
		vals []float64
	}{{"lat", cfg.Lats()}, {"lon", cfg.Lons()}, {"time", times}} {
		if err = writeValues(nc, c.name, []int{0}, []int{len(c.vals) - 1}, c.vals); err != nil {
			f.Close()
			return nil, err
		}
	}
	return v, nil
}

// openVarFile opens an existing variable file and checks that it was
// created for the cube configuration with the given fingerprint.
func openVarFile(path, fingerprint string) (*varFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if fp, _ := nc.Header.GetAttribute("", fingerprintAttr).(string); fp != fingerprint {
		f.Close()
		return nil, fmt.Errorf("%s was not created for this cube configuration", path)
	}
	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	lengths := nc.Header.Lengths(name)
	if len(lengths) != 3 {
		f.Close()
		return nil, fmt.Errorf("%s: missing variable %q", path, name)
	}
	v := &varFile{name: name, path: path, f: f, nc: nc, ny: lengths[1], nx: lengths[2]}
	if v.desc, err = v.readDescriptor(); err != nil {
		f.Close()
		return nil, err
	}
	return v, nil
}

func (v *varFile) readDescriptor() (VariableDescriptor, error) {
	h := v.nc.Header
	var d VariableDescriptor
	switch h.ZeroValue(v.name, 0).(type) {
	case []float32:
		d.DataType = Float32
	case []float64:
		d.DataType = Float64
	case []int16:
		d.DataType = Int16
	case []int32:
		d.DataType = Int32
	case []uint8:
		d.DataType = Uint8
	default:
		return d, fmt.Errorf("%s: unsupported data type for %q", v.path, v.name)
	}
	num := func(a string) float64 {
		if vals, ok := h.GetAttribute(v.name, a).([]float64); ok && len(vals) > 0 {
			return vals[0]
		}
		return 0
	}
	d.FillValue = num("fill_value")
	d.ScaleFactor = num("scale_factor")
	d.AddOffset = num("add_offset")
	d.Units, _ = h.GetAttribute(v.name, "units").(string)
	d.LongName, _ = h.GetAttribute(v.name, "long_name").(string)
	r, _ := h.GetAttribute(v.name, "resampling").(string)
	d.Resampling = Resampling(r)
	return d, nil
}

// writeValues writes vals to variable name between the inclusive
// corners begin and end.
func writeValues(nc *cdf.File, name string, begin, end []int, vals interface{}) error {
	w := nc.Writer(name, begin, end)
	// The writer reports io.EOF when the last value lands on end.
	if _, err := w.Write(vals); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (v *varFile) checkCell(cell int) error {
	if n := v.nc.Header.Lengths(filledVar)[0]; cell < 0 || cell >= n {
		return fmt.Errorf("cell %d out of range [0, %d)", cell, n)
	}
	return nil
}

// write stores r at the given cell and marks the cell as filled.
func (v *varFile) write(cell int, r *sparse.DenseArray) error {
	if err := v.checkCell(cell); err != nil {
		return err
	}
	if len(r.Shape) != 2 || r.Shape[0] != v.ny || r.Shape[1] != v.nx {
		return fmt.Errorf("raster shape %v does not match grid %dx%d", r.Shape, v.ny, v.nx)
	}
	packed, err := v.desc.Pack(r.Elements)
	if err != nil {
		return err
	}
	if err = writeValues(v.nc, v.name, []int{cell, 0, 0}, []int{cell, v.ny - 1, v.nx - 1}, packed); err != nil {
		return err
	}
	return writeValues(v.nc, filledVar, []int{cell}, []int{cell}, []uint8{1})
}

func (v *varFile) filled(cell int) (bool, error) {
	if err := v.checkCell(cell); err != nil {
		return false, err
	}
	r := v.nc.Reader(filledVar, []int{cell}, []int{cell})
	buf := []uint8{0}
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return false, err
	}
	return buf[0] != 0, nil
}

func (v *varFile) read(cell int) (*sparse.DenseArray, error) {
	r := v.nc.Reader(v.name, []int{cell, 0, 0}, []int{cell, v.ny - 1, v.nx - 1})
	buf := r.Zero(v.ny * v.nx)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, err
	}
	o := sparse.ZerosDense(v.ny, v.nx)
	if err := v.desc.Unpack(buf, o.Elements); err != nil {
		return nil, err
	}
	return o, nil
}

func (v *varFile) close() error {
	if v.f == nil {
		return nil
	}
	err := v.f.Close()
	v.f, v.nc = nil, nil
	return err
}
