// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by its
// own RWMutex, so unrelated keys do not contend. The per-client rate
// limiters use it to look up a limiter on every request.
package cmap
