// Package local implements a driven.Ingestor that lands files from a local
// drop directory in the inbound zone.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driven.Ingestor = (*Ingestor)(nil)

// Ingestor copies supported files from a directory to <inbound><basename>.
type Ingestor struct {
	store   driven.BlobStore
	dir     string
	inbound string

	// keep leaves files in the drop directory after they are landed.
	keep bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithKeepFiles leaves landed files in place instead of removing them.
func WithKeepFiles() Option {
	return func(i *Ingestor) { i.keep = true }
}

// New creates a drop-directory ingestor.
func New(store driven.BlobStore, dir, inbound string, opts ...Option) (*Ingestor, error) {
	if dir == "" {
		return nil, domain.ConfigError("ingest.drop_dir is empty", "set ingest.drop_dir to the directory files are dropped into")
	}
	i := &Ingestor{store: store, dir: dir, inbound: inbound}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Name identifies the ingestor in logs.
func (i *Ingestor) Name() string { return "local" }

// Dir returns the watched drop directory.
func (i *Ingestor) Dir() string { return i.dir }

// Ingest lands every supported file currently in the drop directory.
// Files that fail are logged and left in place for the next run.
func (i *Ingestor) Ingest(ctx context.Context, _ time.Time) ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read drop dir %s: %w", i.dir, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read drop dir %s: %w", i.dir, err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	var keys []string
	var failed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		if !i.accepts(entry.Name()) || entry.IsDir() {
			continue
		}
		key, err := i.land(ctx, entry.Name())
		if err != nil {
			failed++
			logger.With(logger.FieldKey, entry.Name(), logger.FieldError, err).Warn("drop file not ingested")
			continue
		}
		keys = append(keys, key)
	}
	if failed > 0 && len(keys) == 0 {
		return nil, fmt.Errorf("%d drop files failed to ingest", failed)
	}
	return keys, nil
}

func (i *Ingestor) land(ctx context.Context, name string) (string, error) {
	path := filepath.Join(i.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	key := i.inbound + name
	if err := i.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	if !i.keep {
		if err := os.Remove(path); err != nil {
			logger.With(logger.FieldKey, key, logger.FieldError, err).Warn("landed file not removed from drop dir")
		}
	}
	logger.With(logger.FieldKey, key).Debug("ingested drop file")
	return key, nil
}

// accepts reports whether a file name is a candidate for ingestion.
// Hidden files and partial uploads are ignored.
func (i *Ingestor) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return domain.IsSupported(name)
}

// Watch reports the paths of supported files as they land in the drop directory.
// The channel is closed when ctx is done or the watcher fails.
func (i *Ingestor) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(i.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", i.dir, err)
	}

	i.mu.Lock()
	i.watcher = watcher
	i.mu.Unlock()

	landed := make(chan string, 16)
	go func() {
		defer close(landed)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if path, ok := i.handleEvent(event); ok {
					select {
					case landed <- path:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.With(logger.FieldError, err).Warn("drop dir watcher error")
			}
		}
	}()
	return landed, nil
}

// handleEvent returns the file path for events that mean a file arrived.
func (i *Ingestor) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if !i.accepts(filepath.Base(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

// Close stops the watcher if one is running.
func (i *Ingestor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.watcher == nil {
		return nil
	}
	err := i.watcher.Close()
	i.watcher = nil
	return err
}
