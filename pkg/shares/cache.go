package shares

import (
	"bytes"
	"encoding/gob"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/seekd/seekd/internal/logger"
)

// Keys in the on-disk catalog cache.
var (
	cacheKeyFiles   = []byte("catalog:files")
	cacheKeyBuiltAt = []byte("catalog:built_at")
)

// diskCache persists the scanned file list so a restarted daemon can serve
// the previous catalog before the first rescan completes. Agent-hosted files
// are not cached; agents re-upload their catalogs on reconnect.
type diskCache struct {
	db *badger.DB
}

func openDiskCache(dir string) (*diskCache, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &diskCache{db: db}, nil
}

func (c *diskCache) Close() error {
	return c.db.Close()
}

// save replaces the cached file list.
func (c *diskCache) save(files []File, builtAt time.Time) error {
	local := make([]File, 0, len(files))
	for _, f := range files {
		if f.Agent == "" {
			local = append(local, f)
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(local); err != nil {
		return err
	}
	stamp, err := builtAt.MarshalBinary()
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(cacheKeyFiles, buf.Bytes()); err != nil {
			return err
		}
		return txn.Set(cacheKeyBuiltAt, stamp)
	})
}

// load returns the cached file list, or ok=false when the cache is empty.
func (c *diskCache) load() (files []File, builtAt time.Time, ok bool) {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKeyFiles)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&files)
		}); err != nil {
			return err
		}

		item, err = txn.Get(cacheKeyBuiltAt)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return builtAt.UnmarshalBinary(val)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			logger.Warn("share catalog cache unreadable", logger.Err(err))
		}
		return nil, time.Time{}, false
	}
	return files, builtAt, true
}
