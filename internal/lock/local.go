/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Release gives a held key back.
type Release func()

// KeyLocker serializes work on a string key. Two holders of the same key
// never run concurrently; distinct keys are independent.
type KeyLocker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

func RiskKey(userId string) string { return "risk:user:" + userId }

func CpKey(userId string) string { return "cp:user:" + userId }

func TreasuryDayKey(day string) string { return "treasury:day:" + day }

func AccountKey(userId, token string) string {
	return fmt.Sprintf("account:user:%s:%s", userId, token)
}

// AcquireAll takes every key in sorted order, so callers that need several
// locks never deadlock against each other. Duplicates are taken once.
func AcquireAll(ctx context.Context, locker KeyLocker, keys ...string) (Release, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []Release
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	var prev string
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		held = append(held, release)
	}
	return releaseAll, nil
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process KeyLocker. Entries are dropped once no goroutine
// holds or waits on them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
