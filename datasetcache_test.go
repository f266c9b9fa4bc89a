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
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func sourceFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("s%d.nc", i))
		writeSource(t, paths[i], "x", []*sparse.DenseArray{raster(1, 1, float64(i))}, -9999, nil, "")
	}
	return paths
}

func TestDatasetCacheReuse(t *testing.T) {
	paths := sourceFiles(t, 1)
	c := NewDatasetCache(DefaultMaxOpenDatasets)
	d1, err := c.GetDataset(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	d2, err := c.GetDataset(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Error("consecutive gets should return the same handle")
	}
	if err = c.CloseDataset(paths[0]); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("%d datasets open after close", c.Len())
	}
	d3, err := c.GetDataset(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if d3 == d1 {
		t.Error("a closed dataset should be reopened")
	}
	if err = c.CloseDataset("not-open"); err != nil {
		t.Errorf("closing an unopened dataset: %v", err)
	}
	if err = c.CloseAllDatasets(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("%d datasets open after CloseAllDatasets", c.Len())
	}
}

func TestDatasetCacheBound(t *testing.T) {
	paths := sourceFiles(t, 5)
	c := NewDatasetCache(2)
	for i, p := range paths {
		d, err := c.GetDataset(p)
		if err != nil {
			t.Fatal(err)
		}
		r, err := d.ReadRaster("x", 0, -9999)
		if err != nil {
			t.Fatal(err)
		}
		if r.Elements[0] != float64(i) {
			t.Errorf("file %d: have %g", i, r.Elements[0])
		}
		if c.Len() > 2 {
			t.Fatalf("%d datasets open, limit is 2", c.Len())
		}
	}
	if err := c.CloseAllDatasets(); err != nil {
		t.Fatal(err)
	}
}

func TestDatasetCacheGzip(t *testing.T) {
	paths := sourceFiles(t, 1)
	gz := gzipFile(t, paths[0])
	if err := os.Remove(paths[0]); err != nil {
		t.Fatal(err)
	}
	c := NewDatasetCache(0)
	d, err := c.GetDataset(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !d.HasVariable("x") {
		t.Error("decompressed dataset is missing variable x")
	}
	tmp := d.tmp
	if err = c.CloseAllDatasets(); err != nil {
		t.Fatal(err)
	}
	if _, err = os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temporary file %s was not removed", tmp)
	}
}

func TestDatasetCacheRetry(t *testing.T) {
	c := NewDatasetCache(0)
	c.Log = quietLog()
	c.OpenRetries = 2
	calls := 0
	c.open = func(ref string) (*Dataset, error) {
		calls++
		return nil, errors.New("transient")
	}
	if _, err := c.GetDataset("x.nc"); err == nil {
		t.Error("open should fail")
	}
	if calls != 3 {
		t.Errorf("%d open attempts, want 3", calls)
	}

	calls = 0
	c.open = func(ref string) (*Dataset, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return &Dataset{Ref: ref}, nil
	}
	d, err := c.GetDataset("y.nc")
	if err != nil {
		t.Fatal(err)
	}
	if d.Ref != "y.nc" || calls != 2 {
		t.Errorf("ref %s after %d calls", d.Ref, calls)
	}
}

func TestDatasetCacheNotExist(t *testing.T) {
	c := NewDatasetCache(0)
	c.Log = quietLog()
	calls := 0
	c.open = func(ref string) (*Dataset, error) {
		calls++
		return OpenDataset(ref)
	}
	_, err := c.GetDataset(filepath.Join(t.TempDir(), "missing.nc"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want a not-exist error, have %v", err)
	}
	if calls != 1 {
		t.Errorf("missing file opened %d times", calls)
	}
}
