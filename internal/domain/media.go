package domain

import (
	"os"
	"sync"
)

// MediaAsset is a normalized cover image staged in a transient file for a
// single publish attempt. The controller defers Remove on every exit path;
// the file is deleted exactly once no matter how the cycle ends.
type MediaAsset struct {
	Path string

	once sync.Once
}

// Remove deletes the transient file. Safe on a nil asset and safe to call
// more than once.
func (a *MediaAsset) Remove() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		os.Remove(a.Path)
	})
}
