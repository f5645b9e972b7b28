//go:build !deadlock

// Package syncutil provides mutex types that can optionally use deadlock
// detection. This file is compiled by default, using standard sync mutexes.
package syncutil

import "sync"

// Mutex wraps sync.Mutex for normal builds.
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex for normal builds.
type RWMutex struct {
	sync.RWMutex
}
