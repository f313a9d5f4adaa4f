// Package memory is a process-local DocumentStorage, used for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Driver keeps the encoded document in memory so reads and writes go through the
// same codec as the persistent drivers.
type Driver struct {
	mu  sync.RWMutex
	raw []byte
}

// NewDriver creates an empty Driver.
func NewDriver() *Driver {
	return &Driver{raw: []byte("{}")}
}

func (d *Driver) Read(_ context.Context) (dispatch.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return dispatch.DecodeDocument(d.raw)
}

func (d *Driver) Write(_ context.Context, doc dispatch.Document) error {
	raw, err := dispatch.EncodeDocument(doc)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = raw
	return nil
}

func (d *Driver) Empty(ctx context.Context) error {
	return d.Write(ctx, dispatch.Document{})
}

// Raw returns the stored JSON.
func (d *Driver) Raw() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.raw...)
}
