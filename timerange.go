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
	"sort"
	"time"
)

// TimeRange is the calendar interval [Start, End) covered by one
// record of a source file.
type TimeRange struct {
	Start, End time.Time

	// Source is the path of the file holding the record.
	Source string

	// Index is the position of the record within Source.
	Index int
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// Overlap returns the length of the intersection of r with [start, end).
func (r TimeRange) Overlap(start, end time.Time) time.Duration {
	s, e := r.Start, r.End
	if start.After(s) {
		s = start
	}
	if end.Before(e) {
		e = end
	}
	if !e.After(s) {
		return 0
	}
	return e.Sub(s)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s[%d] [%s, %s)", r.Source, r.Index, r.Start.Format(dateFormat), r.End.Format(dateFormat))
}

// SortTimeRanges sorts ranges by start time. Ranges with equal start
// times keep their relative order.
func SortTimeRanges(ranges []TimeRange) {
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })
}

// CheckTimeRanges returns an error if any range is empty or if ranges
// is not sorted by start time.
func CheckTimeRanges(ranges []TimeRange) error {
	for i, r := range ranges {
		if !r.End.After(r.Start) {
			return fmt.Errorf("datacube: time range %v: end is not after start", r)
		}
		if i > 0 && r.Start.Before(ranges[i-1].Start) {
			return fmt.Errorf("datacube: time range %v starts before preceding range %v", r, ranges[i-1])
		}
	}
	return nil
}

// IndexToWeight maps positions in a provider's time range list to
// blend weights.
type IndexToWeight map[int]float64

// Indices returns the keys of w in increasing order.
func (w IndexToWeight) Indices() []int {
	o := make([]int, 0, len(w))
	for i := range w {
		o = append(o, i)
	}
	sort.Ints(o)
	return o
}

// OverlapWeights returns the weight of every range in ranges that
// intersects the cell [start, end). The weight of a range is the
// fraction of the cell that it covers, so a range spanning the whole
// cell has weight 1. ranges must be sorted by start time.
func OverlapWeights(ranges []TimeRange, start, end time.Time) IndexToWeight {
	w := make(IndexToWeight)
	cell := end.Sub(start)
	if cell <= 0 {
		return w
	}
	// Ranges at or after n start at or after the end of the cell.
	n := sort.Search(len(ranges), func(i int) bool { return !ranges[i].Start.Before(end) })
	for i := 0; i < n; i++ {
		if o := ranges[i].Overlap(start, end); o > 0 {
			w[i] = float64(o) / float64(cell)
		}
	}
	return w
}
