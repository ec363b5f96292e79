package store

import (
	"sync"

	"plantkeeper/internal/models"
)

// idAllocator hands out plant ids above the highest id it has observed.
// It has no persisted counter of its own; every load reseeds it from the
// ids present in the backing file.
type idAllocator struct {
	mu        sync.Mutex
	highWater int64
}

func (a *idAllocator) observe(plants []models.Plant) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range plants {
		if p.ID > a.highWater {
			a.highWater = p.ID
		}
	}
}

func (a *idAllocator) next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.highWater++
	return a.highWater
}

func (a *idAllocator) current() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWater
}
