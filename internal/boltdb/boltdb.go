package boltdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/alanbriolat/weeb/httpcache"
)

var Buckets = struct {
	Metadata  []byte
	Responses []byte
	Bodies    []byte
}{
	Metadata:  []byte("__metadata__"),
	Responses: []byte("responses"),
	Bodies:    []byte("bodies"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// Database is a persistent httpcache.Storage. Response metadata is stored as JSON, and bodies are zstd-compressed in
// a separate bucket.
type Database interface {
	httpcache.Storage
	Close() error
}

type database struct {
	*bbolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	log     *zap.SugaredLogger
}

func New(path string) (_ Database, err error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		for _, name := range [][]byte{Buckets.Responses, Buckets.Bodies} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		// Get the current version of the database
		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("cache database version %d is newer than supported version %d", version, currentVersion)
		}

		// Set the current version of the database
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &database{
		DB:      db,
		encoder: encoder,
		decoder: decoder,
		log:     zap.S().Named("boltdb").With("path", path),
	}, nil
}

func (d *database) Get(key string) (*httpcache.Entry, error) {
	var metadata, compressed []byte
	err := d.View(func(tx *bbolt.Tx) error {
		// Values are only valid for the life of the transaction
		metadata = clone(tx.Bucket(Buckets.Responses).Get([]byte(key)))
		compressed = clone(tx.Bucket(Buckets.Bodies).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, httpcache.ErrNotFound
	}
	var entry httpcache.Entry
	if err := json.Unmarshal(metadata, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %q: %w", key, err)
	}
	if len(compressed) > 0 {
		if entry.Body, err = d.decoder.DecodeAll(compressed, nil); err != nil {
			return nil, fmt.Errorf("corrupt cache body %q: %w", key, err)
		}
	}
	return &entry, nil
}

func (d *database) Put(key string, entry *httpcache.Entry) error {
	metadata, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	compressed := d.encoder.EncodeAll(entry.Body, nil)
	err = d.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(Buckets.Responses).Put([]byte(key), metadata); err != nil {
			return err
		}
		return tx.Bucket(Buckets.Bodies).Put([]byte(key), compressed)
	})
	if err == nil {
		d.log.Debugw("stored", "cache_key", key, "size", len(entry.Body), "compressed", len(compressed))
	}
	return err
}

func (d *database) Delete(key string) error {
	return d.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(Buckets.Responses).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(Buckets.Bodies).Delete([]byte(key))
	})
}

func (d *database) Close() error {
	d.decoder.Close()
	_ = d.encoder.Close()
	return d.DB.Close()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
