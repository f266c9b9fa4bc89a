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

package cubeutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/datacube"
)

// Job is one invocation of the cube builder.
type Job struct {
	// Target is the cube directory.
	Target string

	// Sources are the sources to add, each in the form name:path.
	Sources []string

	// CubeConfig is the path to the configuration of a new cube.
	// If it is empty, existing cubes are opened and new ones are
	// created with datacube.DefaultConfig.
	CubeConfig string

	// SourceRoot is the directory relative source paths are
	// resolved against.
	SourceRoot string

	Overwrite       bool
	MaxOpenDatasets int

	Registry *datacube.Registry
	Log      logrus.FieldLogger
}

type source struct {
	name, path string
}

// parseSources splits name:path arguments.
func parseSources(args []string, root string) ([]source, error) {
	o := make([]source, len(args))
	for i, a := range args {
		parts := strings.SplitN(a, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("datacube: invalid source %q, want name:SOURCE", a)
		}
		path := os.ExpandEnv(parts[1])
		if root != "" && !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		o[i] = source{name: parts[0], path: path}
	}
	return o, nil
}

// datasetLimiter is implemented by providers whose number of open
// source files can be bounded.
type datasetLimiter interface {
	SetMaxOpenDatasets(n int)
}

// Run opens or creates the target cube and updates it from every
// source in turn.
func (j *Job) Run(ctx context.Context) (*datacube.UpdateReport, error) {
	sources, err := parseSources(j.Sources, j.SourceRoot)
	if err != nil {
		return nil, err
	}
	cube, err := j.openOrCreate()
	if err != nil {
		return nil, err
	}
	defer cube.Close()
	cube.Overwrite = j.Overwrite
	if j.Log != nil {
		cube.Log = j.Log
	}

	providers := make([]datacube.SourceProvider, 0, len(sources))
	for _, s := range sources {
		p, err := j.Registry.New(s.name, cube.Config, s.path)
		if err != nil {
			for _, pp := range providers {
				pp.Close()
			}
			return nil, err
		}
		if l, ok := p.(datasetLimiter); ok && j.MaxOpenDatasets > 0 {
			l.SetMaxOpenDatasets(j.MaxOpenDatasets)
		}
		providers = append(providers, p)
	}
	report, err := cube.UpdateAll(ctx, providers...)
	if report != nil {
		cube.Log.WithFields(logrus.Fields{
			"written":  report.CellsWritten,
			"skipped":  report.CellsSkipped,
			"failed":   len(report.CellFailures),
			"warnings": len(report.ScanWarnings),
		}).Info("datacube: update finished")
	}
	return report, err
}

func (j *Job) openOrCreate() (*datacube.Cube, error) {
	_, err := os.Stat(filepath.Join(j.Target, datacube.ConfigFileName))
	exists := err == nil
	if j.CubeConfig != "" {
		if exists {
			return nil, fmt.Errorf("datacube: %s is an existing cube; a cube configuration can only be given for a new cube", j.Target)
		}
		cfg, err := datacube.LoadConfig(j.CubeConfig)
		if err != nil {
			return nil, err
		}
		return datacube.Create(j.Target, cfg)
	}
	if exists {
		return datacube.Open(j.Target)
	}
	return datacube.Create(j.Target, datacube.DefaultConfig())
}
