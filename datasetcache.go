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
	"io/fs"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
)

// DefaultMaxOpenDatasets is the default bound on the number of
// datasets a DatasetCache holds open.
const DefaultMaxOpenDatasets = 64

// DatasetCache memoizes open source datasets by reference. Callers
// are expected to release datasets they no longer need with
// CloseDataset; as a safety net, the cache also closes the least
// recently used dataset when more than its maximum are open.
// It is safe for concurrent use.
type DatasetCache struct {
	// Log receives notices of retried opens.
	Log logrus.FieldLogger

	// OpenRetries is the number of times a failed open is retried
	// before giving up. Missing files are never retried.
	OpenRetries uint64

	// open opens a dataset; OpenDataset unless replaced in tests.
	open func(ref string) (*Dataset, error)

	mu       sync.Mutex
	cache    *lru.Cache
	closeErr error
}

// NewDatasetCache returns a cache holding at most maxOpen datasets
// open at once. maxOpen <= 0 means there is no limit.
func NewDatasetCache(maxOpen int) *DatasetCache {
	if maxOpen < 0 {
		maxOpen = 0
	}
	c := &DatasetCache{
		Log:         logrus.StandardLogger(),
		OpenRetries: 3,
		open:        OpenDataset,
		cache:       lru.New(maxOpen),
	}
	c.cache.OnEvicted = func(key lru.Key, value interface{}) {
		if err := value.(*Dataset).Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	}
	return c
}

// GetDataset returns the dataset for ref, opening it if it is not
// already open. Consecutive calls without an intervening CloseDataset
// return the same handle.
func (c *DatasetCache) GetDataset(ref string) (*Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.cache.Get(ref); ok {
		return d.(*Dataset), nil
	}
	d, err := c.openWithRetry(ref)
	if err != nil {
		return nil, err
	}
	c.cache.Add(ref, d)
	return d, nil
}

func (c *DatasetCache) openWithRetry(ref string) (*Dataset, error) {
	var d *Dataset
	var notExist error
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	err := backoff.RetryNotify(
		func() error {
			var err error
			d, err = c.open(ref)
			if errors.Is(err, fs.ErrNotExist) {
				notExist = err
				return nil
			}
			return err
		},
		backoff.WithMaxRetries(b, c.OpenRetries),
		func(err error, wait time.Duration) {
			c.Log.WithFields(logrus.Fields{
				"dataset": ref,
				"wait":    wait,
			}).Warnf("datacube: opening dataset failed, retrying: %v", err)
		},
	)
	if notExist != nil {
		return nil, notExist
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CloseDataset closes the dataset for ref. It is a no-op if the
// dataset is not open.
func (c *DatasetCache) CloseDataset(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(ref)
	return c.takeErr()
}

// CloseAllDatasets closes every open dataset.
func (c *DatasetCache) CloseAllDatasets() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.cache.Len() > 0 {
		c.cache.RemoveOldest()
	}
	return c.takeErr()
}

// Len returns the number of open datasets.
func (c *DatasetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *DatasetCache) takeErr() error {
	err := c.closeErr
	c.closeErr = nil
	return err
}
