/******************************************************************************
*
*  Copyright 2024 SAP SE
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
*
******************************************************************************/

package restmachine

import (
	"sync"
)

// sessionCache holds the values of session-scoped dependencies. Each entry
// has its own lock, so that a slow provider only blocks requests that need
// the same value.
type sessionCache struct {
	mutex   sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	mutex sync.Mutex
	done  bool
	value any
}

func newSessionCache() *sessionCache {
	return &sessionCache{entries: make(map[string]*sessionEntry)}
}

func (c *sessionCache) entry(name string) *sessionEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &sessionEntry{}
		c.entries[name] = e
	}
	return e
}

// getOrCompute returns the cached value, or calls compute and caches its
// result. Failed computations are not cached.
func (c *sessionCache) getOrCompute(name string, compute func() (any, error)) (any, error) {
	e := c.entry(name)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.done {
		return e.value, nil
	}
	value, err := compute()
	if err != nil {
		return nil, err
	}
	e.value = value
	e.done = true
	return value, nil
}
