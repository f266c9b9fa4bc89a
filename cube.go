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

// Package datacube builds and incrementally updates a multi-variable
// data cube from earth observation source archives. Source rasters are
// matched to the cube's temporal cells by time overlap, blended with
// overlap weights and resampled onto the cube's spatial grid.
//
// A cube directory must only be updated by one process at a time.
// Nothing in this package enforces that; callers running concurrent
// updates against the same directory must hold an external lock.
package datacube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Cube is an open data cube directory.
type Cube struct {
	// Dir is the cube directory.
	Dir string

	// Config is the configuration the cube was created with. It must
	// not be modified.
	Config *CubeConfig

	// Log receives progress and warning messages.
	Log logrus.FieldLogger

	// Overwrite causes Update to recompute cells that have already
	// been filled. The most recent write of a cell wins.
	Overwrite bool

	mu   sync.Mutex
	vars map[string]*varFile
}

// Create creates a new cube in dir, which must either not exist or be
// an empty directory.
func Create(dir string, cfg *CubeConfig) (*Cube, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("datacube: creating cube: %v", err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("datacube: creating cube: directory %s is not empty", dir)
	}
	if err = os.MkdirAll(filepath.Join(dir, dataDirName), 0755); err != nil {
		return nil, fmt.Errorf("datacube: creating cube: %v", err)
	}
	f, err := os.Create(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, fmt.Errorf("datacube: creating cube: %v", err)
	}
	if err = cfg.Write(f); err != nil {
		f.Close()
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("datacube: creating cube: %v", err)
	}
	c := newCube(dir, cfg)
	names := make([]string, 0, len(cfg.Variables))
	for name := range cfg.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := createVarFile(dir, name, cfg.Variables[name], cfg)
		if err != nil {
			c.Close()
			return nil, &StorageError{Variable: name, Err: err}
		}
		c.vars[name] = v
	}
	return c, nil
}

// Open opens the existing cube in dir.
func Open(dir string) (*Cube, error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	c := newCube(dir, cfg)
	files, err := filepath.Glob(filepath.Join(dir, dataDirName, "*.nc"))
	if err != nil {
		return nil, err
	}
	fp := cfg.Fingerprint()
	for _, path := range files {
		v, err := openVarFile(path, fp)
		if err != nil {
			c.Close()
			return nil, &StorageError{Err: err}
		}
		c.vars[v.name] = v
	}
	return c, nil
}

func newCube(dir string, cfg *CubeConfig) *Cube {
	return &Cube{
		Dir:    dir,
		Config: cfg,
		Log:    logrus.StandardLogger(),
		vars:   make(map[string]*varFile),
	}
}

// Variables returns the descriptors of the variables stored in the cube.
func (c *Cube) Variables() map[string]VariableDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := make(map[string]VariableDescriptor, len(c.vars))
	for name, v := range c.vars {
		o[name] = v.desc
	}
	return o
}

func (c *Cube) varFile(variable string) (*varFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[variable]
	if !ok {
		return nil, fmt.Errorf("datacube: no variable %q in cube", variable)
	}
	return v, nil
}

// IsFilled returns whether the given cell of variable has been written.
func (c *Cube) IsFilled(variable string, cell int) (bool, error) {
	v, err := c.varFile(variable)
	if err != nil {
		return false, err
	}
	return v.filled(cell)
}

// ReadRaster returns the physical values of variable at the given
// cell. It returns ErrNotFilled if the cell has not been written.
func (c *Cube) ReadRaster(variable string, cell int) (*sparse.DenseArray, error) {
	v, err := c.varFile(variable)
	if err != nil {
		return nil, err
	}
	filled, err := v.filled(cell)
	if err != nil {
		return nil, err
	}
	if !filled {
		return nil, ErrNotFilled
	}
	return v.read(cell)
}

// Close closes the variable files of the cube.
func (c *Cube) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for _, v := range c.vars {
		if e := v.close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// registerVariables makes sure there is a file for each variable a
// provider computes, and that each descriptor agrees with the cube's.
func (c *Cube) registerVariables(provider string, descs map[string]VariableDescriptor) error {
	if len(descs) == 0 {
		return &ConfigurationError{Provider: provider, Err: fmt.Errorf("provider declares no variables")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range sortedNames(descs) {
		d := descs[name]
		if err := validate.Struct(d); err != nil {
			return &ConfigurationError{Provider: provider, Err: fmt.Errorf("variable %s: %v", name, err)}
		}
		if err := d.checkFill(); err != nil {
			return &ConfigurationError{Provider: provider, Err: fmt.Errorf("variable %s: %v", name, err)}
		}
		if len(c.Config.Variables) > 0 {
			want, ok := c.Config.Variables[name]
			if !ok {
				return &ConfigurationError{Provider: provider, Err: fmt.Errorf("variable %s is not in the cube's variable registry", name)}
			}
			if want.normalized() != d.normalized() {
				return &ConfigurationError{Provider: provider, Err: fmt.Errorf("variable %s: descriptor %+v conflicts with registry %+v", name, d, want)}
			}
		}
		if v, ok := c.vars[name]; ok {
			if v.desc.normalized() != d.normalized() {
				return &ConfigurationError{Provider: provider, Err: fmt.Errorf("variable %s: descriptor %+v conflicts with stored %+v", name, d, v.desc)}
			}
			continue
		}
		v, err := createVarFile(c.Dir, name, d, c.Config)
		if err != nil {
			return &StorageError{Variable: name, Err: err}
		}
		c.vars[name] = v
	}
	return nil
}

func sortedNames(m map[string]VariableDescriptor) []string {
	o := make([]string, 0, len(m))
	for n := range m {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// Update adds the contribution of provider p to the cube. Each cell
// that is not yet filled for all of p's variables is computed from
// the source records overlapping it and stored.
//
// Failures limited to one cell or to p itself are recorded in the
// returned report and do not stop the update; use the report's Err
// method to check for them. The returned error is non-nil only if
// the cube could not be written or ctx was canceled, in which case
// the report covers the cells processed so far. p is closed before
// Update returns.
func (c *Cube) Update(ctx context.Context, p SourceProvider) (*UpdateReport, error) {
	report := new(UpdateReport)
	log := c.Log.WithField("provider", p.Name())
	defer func() {
		if err := p.Close(); err != nil {
			log.Warnf("datacube: closing provider: %v", err)
		}
	}()
	fail := func(err error) (*UpdateReport, error) {
		log.Errorf("datacube: provider abandoned: %v", err)
		report.ProviderFailures = append(report.ProviderFailures, ProviderFailure{Provider: p.Name(), Err: err})
		return report, nil
	}

	err := p.Prepare()
	if sw, ok := p.(ScanWarner); ok {
		for _, w := range sw.ScanWarnings() {
			log.Warn(w)
			report.ScanWarnings = append(report.ScanWarnings, w)
		}
	}
	if err != nil {
		return fail(err)
	}
	if err = c.registerVariables(p.Name(), p.VariableDescriptors()); err != nil {
		if _, ok := err.(*StorageError); ok {
			return report, err
		}
		return fail(err)
	}
	if !p.SpatialCoverage().Intersects(c.Config.Coverage()) {
		log.Infof("datacube: provider coverage %+v is outside the cube grid; skipping", p.SpatialCoverage())
		return report, nil
	}
	ranges := p.SourceTimeRanges()
	if err = CheckTimeRanges(ranges); err != nil {
		return fail(err)
	}
	names := sortedNames(p.VariableDescriptors())
	vars := make([]*varFile, len(names))
	for i, name := range names {
		if vars[i], err = c.varFile(name); err != nil {
			return report, &StorageError{Variable: name, Err: err}
		}
	}

	n := c.Config.NumCells()
	log.Infof("datacube: updating %d cells from %d source time ranges", n, len(ranges))
	for cell := 0; cell < n; cell++ {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		if !c.Overwrite {
			filled, err := allFilled(vars, cell)
			if err != nil {
				return report, err
			}
			if filled {
				report.CellsSkipped++
				continue
			}
		}
		start, end := c.Config.CellInterval(cell)
		w := OverlapWeights(ranges, start, end)
		if len(w) == 0 {
			report.CellsSkipped++
			continue
		}
		cellLog := log.WithFields(logrus.Fields{
			"cell":  cell,
			"start": start.Format(dateFormat),
			"end":   end.Format(dateFormat),
		})
		images, err := p.ComputeVariableImages(w)
		if err == nil {
			err = c.checkImages(names, images)
		}
		if err != nil {
			if _, ok := err.(*ComputeError); !ok {
				err = &ComputeError{Provider: p.Name(), Cell: cell, Err: err}
			}
			cellLog.Error(err)
			report.CellFailures = append(report.CellFailures, CellFailure{
				Provider: p.Name(), Cell: cell, Start: start, End: end, Err: err,
			})
			continue
		}
		for i, v := range vars {
			if err = v.write(cell, images[names[i]]); err != nil {
				return report, &StorageError{Variable: names[i], Cell: cell, Err: err}
			}
		}
		cellLog.Debugf("datacube: wrote cell from %d source(s)", len(w))
		report.CellsWritten++
	}
	return report, nil
}

func allFilled(vars []*varFile, cell int) (bool, error) {
	for _, v := range vars {
		filled, err := v.filled(cell)
		if err != nil {
			return false, &StorageError{Variable: v.name, Cell: cell, Err: err}
		}
		if !filled {
			return false, nil
		}
	}
	return true, nil
}

func (c *Cube) checkImages(names []string, images map[string]*sparse.DenseArray) error {
	for _, name := range names {
		im, ok := images[name]
		if !ok || im == nil {
			return fmt.Errorf("no raster computed for variable %s", name)
		}
		if len(im.Shape) != 2 || im.Shape[0] != c.Config.GridHeight || im.Shape[1] != c.Config.GridWidth {
			return fmt.Errorf("raster for variable %s has shape %v, want [%d %d]",
				name, im.Shape, c.Config.GridHeight, c.Config.GridWidth)
		}
	}
	return nil
}

// UpdateAll runs Update for each provider in turn. A provider that
// fails entirely does not prevent the others from contributing; the
// run stops early only on a storage failure or cancellation. Providers
// that are not reached are still closed.
func (c *Cube) UpdateAll(ctx context.Context, providers ...SourceProvider) (*UpdateReport, error) {
	report := new(UpdateReport)
	for i, p := range providers {
		r, err := c.Update(ctx, p)
		report.merge(r)
		if err != nil {
			for _, rest := range providers[i+1:] {
				rest.Close()
			}
			return report, err
		}
	}
	return report, nil
}
