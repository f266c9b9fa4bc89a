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

import "github.com/spatialmodel/datacube"

// NewRegistry returns a registry holding every provider in this package.
func NewRegistry() *datacube.Registry {
	r := datacube.NewRegistry()
	for name, c := range map[string]datacube.Constructor{
		"albedo":           NewAlbedo,
		"snow_area_extent": NewSnowAreaExtent,
	} {
		if err := r.Register(name, c); err != nil {
			panic(err)
		}
	}
	return r
}
