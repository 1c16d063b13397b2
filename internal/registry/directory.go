package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"relawan/internal/registration/models"
)

// DirectoryStatus is the lifecycle of one region fetch.
type DirectoryStatus string

const (
	DirectoryLoading DirectoryStatus = "loading"
	DirectoryReady   DirectoryStatus = "ready"
	DirectoryFailed  DirectoryStatus = "failed"
)

// RegionLister is the read side of the registry the directory loads from.
type RegionLister interface {
	ListRegions(ctx context.Context) ([]models.RegionOption, error)
}

// DirectorySnapshot is a copy of the directory's state at one instant.
type DirectorySnapshot struct {
	Status  DirectoryStatus
	Options []models.RegionOption
	Err     error
}

// Loading reports whether the fetch is still pending.
func (s DirectorySnapshot) Loading() bool { return s.Status == DirectoryLoading }

// Selectable reports whether the region selector should be enabled.
func (s DirectorySnapshot) Selectable() bool {
	return s.Status == DirectoryReady && len(s.Options) > 0
}

// Directory is the region list fetched once per wizard mount. It starts out
// loading, settles exactly once, and is read-only afterwards. A failed fetch
// leaves it empty, so no region id resolves.
type Directory struct {
	mu      sync.RWMutex
	status  DirectoryStatus
	options []models.RegionOption
	index   map[string]struct{}
	err     error

	once sync.Once
	done chan struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		status: DirectoryLoading,
		done:   make(chan struct{}),
	}
}

// Load fetches the regions and settles the directory. Only the first call
// has any effect. A panicking lister settles the directory as failed.
func (d *Directory) Load(ctx context.Context, lister RegionLister) (err error) {
	d.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("list regions panicked: %v", r)
				d.settle(nil, err)
			}
		}()
		var options []models.RegionOption
		options, err = lister.ListRegions(ctx)
		d.settle(options, err)
	})
	return err
}

func (d *Directory) settle(options []models.RegionOption, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer close(d.done)

	if err != nil {
		d.status = DirectoryFailed
		d.err = err
		return
	}
	d.status = DirectoryReady
	d.options = slices.Clone(options)
	d.index = make(map[string]struct{}, len(options))
	for _, o := range options {
		d.index[o.ID] = struct{}{}
	}
}

// Contains reports whether id is a region of the settled directory.
func (d *Directory) Contains(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[id]
	return ok
}

func (d *Directory) Snapshot() DirectorySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DirectorySnapshot{
		Status:  d.status,
		Options: slices.Clone(d.options),
		Err:     d.err,
	}
}

// Wait blocks until the directory settles or ctx is done.
func (d *Directory) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
