// Package file persists the subscription document as a .json file on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Driver implements dispatch.DocumentStorage over a single JSON file. Reads hold a
// shared lock and writes an exclusive one, so readers never see a partial document.
type Driver struct {
	path   string
	logger *slog.Logger
}

// NewDriver opens the document at path. The file must already exist and carry a
// .json extension. Empty or non-object content is reset to {}.
func NewDriver(ctx context.Context, path string, logger *slog.Logger) (*Driver, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", dispatch.ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}
	if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrInvalidFileType, path)
	}

	d := &Driver{
		path:   path,
		logger: logger.With("component", "FileDriver", "path", path),
	}

	raw, err := d.readRaw()
	if err != nil {
		return nil, err
	}
	doc, err := dispatch.DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 && strings.TrimSpace(string(raw)) != "{}" {
		d.logger.Debug("Initializing empty subscription document")
		if err := d.Empty(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) Read(_ context.Context) (dispatch.Document, error) {
	raw, err := d.readRaw()
	if err != nil {
		return nil, err
	}
	return dispatch.DecodeDocument(raw)
}

// Write replaces the file content. A path removed since NewDriver fails with
// ErrUnableToWrite rather than being recreated.
func (d *Driver) Write(_ context.Context, doc dispatch.Document) error {
	raw, err := dispatch.EncodeDocument(doc)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("%w: lock: %v", dispatch.ErrUnableToWrite, err)
	}
	defer unlock(f)

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	if _, err := f.WriteAt(raw, 0); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	return nil
}

func (d *Driver) Empty(ctx context.Context) error {
	return d.Write(ctx, dispatch.Document{})
}

func (d *Driver) readRaw() ([]byte, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return nil, fmt.Errorf("%w: lock: %v", dispatch.ErrUnableToRead, err)
	}
	defer unlock(f)

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}
	return raw, nil
}
