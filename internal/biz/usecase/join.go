package usecase

import (
	"context"
	"sort"
	"time"
)

// JoinResult is the outcome of a bounded fan-out
type JoinResult[V any] struct {
	Values  map[string]V
	Errors  map[string]error
	Missing []string // keys that had not reported by the deadline, sorted
}

// Complete reports whether every key reported before the deadline
func (r *JoinResult[V]) Complete() bool {
	return len(r.Missing) == 0
}

type joinReport[V any] struct {
	key string
	val V
	err error
}

// Join runs fn once per key concurrently and collects the results until every
// key has reported or the deadline elapses, whichever is first. Late
// goroutines finish in the background; their results are discarded.
func Join[V any](ctx context.Context, keys []string, deadline time.Duration, fn func(ctx context.Context, key string) (V, error)) *JoinResult[V] {
	res := &JoinResult[V]{
		Values: make(map[string]V, len(keys)),
		Errors: make(map[string]error),
	}

	unique := make(map[string]bool, len(keys))
	for _, k := range keys {
		unique[k] = true
	}
	if len(unique) == 0 {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	reports := make(chan joinReport[V], len(unique))
	for k := range unique {
		go func(key string) {
			v, err := fn(ctx, key)
			reports <- joinReport[V]{key: key, val: v, err: err}
		}(k)
	}
	defer cancel()

	for len(unique) > 0 {
		select {
		case r := <-reports:
			delete(unique, r.key)
			if r.err != nil {
				res.Errors[r.key] = r.err
				continue
			}
			res.Values[r.key] = r.val
		case <-ctx.Done():
			for k := range unique {
				res.Missing = append(res.Missing, k)
			}
			sort.Strings(res.Missing)
			return res
		}
	}
	return res
}
