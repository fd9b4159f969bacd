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
	"time"

	"citizen-economy-go/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockFailed is returned when the retry budget runs out. It is a
// conflict: the caller may retry the whole operation.
var ErrLockFailed = fmt.Errorf("failed to acquire distributed lock: %w", store.ErrConflict)

// SET NX only guarantees exclusivity; the compare-and-delete must be atomic
// or an expired holder could release a successor's lock.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Redis is a KeyLocker backed by SET NX EX, shared by every process that
// talks to the same Redis.
type Redis struct {
	client        *redis.Client
	prefix        string
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedis(client *redis.Client, expiration time.Duration) *Redis {
	return &Redis{
		client:        client,
		prefix:        "economy:lock:",
		expiration:    expiration,
		retryInterval: 25 * time.Millisecond,
		maxRetries:    int(expiration / (25 * time.Millisecond)),
	}
}

func (r *Redis) tryLock(ctx context.Context, key, value string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, value, r.expiration).Result()
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	value := uuid.New().String()
	for i := 0; i <= r.maxRetries; i++ {
		ok, err := r.tryLock(ctx, key, value)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { r.unlock(key, value) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}
	return nil, fmt.Errorf("%w (key %s)", ErrLockFailed, key)
}

func (r *Redis) unlock(key, value string) {
	// The caller's ctx may already be done; the release must still reach Redis.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Eval(ctx, unlockScript, []string{r.prefix + key}, value).Err(); err != nil {
		zap.L().Warn("Failed to release distributed lock", zap.String("key", key), zap.Error(err))
	}
}
