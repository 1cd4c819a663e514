package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/bsm/redislock"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func UniqueSlice[T comparable](input []T) []T {
	seen := make(map[T]struct{}, len(input))
	out := make([]T, 0, len(input))
	for _, v := range input {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// KeyedLock obtains a short-lived distributed lock for a resource key.
// Used to serialize the outbox dispatcher across instances; the engine's own
// per-product/per-document serialization uses MySQL advisory locks instead
// (those must live on the posting transaction's connection).
func KeyedLock(ctx context.Context, key string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Single-instance deployments run without redis; dispatcher claims
		// rows with SKIP LOCKED, so this is safe to skip.
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:%s", key), 30*time.Second, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock", key, err)
		return nil, errors.New("could not obtain lock for " + key)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", key, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}
	return release, nil
}
