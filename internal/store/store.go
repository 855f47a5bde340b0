// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package store implements the node's durable key/value preferences on top
// of bbolt. Keys are scoped by namespace (one bucket per namespace) so that
// a settings reset does not erase crash history kept in a separate
// namespace. Values are CBOR-encoded, one record per key.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

// Well-known namespaces.
const (
	NamespaceSettings = "settings"
	NamespaceBootStat = "bootstat"
)

var errKeyNotFound = errors.New("store: key not found")

// Store wraps the bbolt database backing all persistent namespaces.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store file.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Namespace returns a handle scoping all operations to one bucket.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{db: s.db, name: []byte(name)}
}

// Namespace scopes gets and puts to a single bucket.
type Namespace struct {
	db   *bolt.DB
	name []byte
}

// Update runs fn inside a single read-write transaction: the begin / put /
// commit contract. Either every put in fn lands or none do.
func (n *Namespace) Update(fn func(*Txn) error) error {
	err := n.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(n.name)
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", n.name, err)
		}
		return fn(&Txn{bucket: b})
	})
	if err != nil {
		return fmt.Errorf("store update %s: %w", n.name, err)
	}
	return nil
}

// View runs fn inside a read-only transaction. Reads against a namespace
// that was never written see only defaults.
func (n *Namespace) View(fn func(*Txn) error) error {
	err := n.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.name)
		return fn(&Txn{bucket: b})
	})
	if err != nil {
		return fmt.Errorf("store view %s: %w", n.name, err)
	}
	return nil
}

// Clear deletes every key in the namespace.
func (n *Namespace) Clear() error {
	err := n.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(n.name) == nil {
			return nil
		}
		if err := tx.DeleteBucket(n.name); err != nil {
			return fmt.Errorf("delete bucket %s: %w", n.name, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store clear %s: %w", n.name, err)
	}
	return nil
}

// Txn exposes typed get/put operations inside one transaction. Getters
// return the supplied default when the key is missing or its stored
// encoding cannot be decoded; corruption of a single value must never take
// the node down.
type Txn struct {
	bucket *bolt.Bucket
}

func (t *Txn) get(key string, out any) error {
	if t.bucket == nil {
		return errKeyNotFound
	}
	raw := t.bucket.Get([]byte(key))
	if raw == nil {
		return errKeyNotFound
	}
	if err := cbor.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (t *Txn) put(key string, val any) error {
	if t.bucket == nil {
		return errors.New("store: put outside update transaction")
	}
	raw, err := cbor.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.bucket.Put([]byte(key), raw); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetString returns the string stored under key, or def.
func (t *Txn) GetString(key, def string) string {
	var v string
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetBool returns the bool stored under key, or def.
func (t *Txn) GetBool(key string, def bool) bool {
	var v bool
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetUint8 returns the uint8 stored under key, or def.
func (t *Txn) GetUint8(key string, def uint8) uint8 {
	var v uint8
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetUint16 returns the uint16 stored under key, or def.
func (t *Txn) GetUint16(key string, def uint16) uint16 {
	var v uint16
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetUint32 returns the uint32 stored under key, or def.
func (t *Txn) GetUint32(key string, def uint32) uint32 {
	var v uint32
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetInt64 returns the int64 stored under key, or def.
func (t *Txn) GetInt64(key string, def int64) int64 {
	var v int64
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// GetInts returns the int slice stored under key, or def.
func (t *Txn) GetInts(key string, def []int) []int {
	var v []int
	if err := t.get(key, &v); err != nil {
		return def
	}
	return v
}

// PutString stores a string under key.
func (t *Txn) PutString(key, val string) error { return t.put(key, val) }

// PutBool stores a bool under key.
func (t *Txn) PutBool(key string, val bool) error { return t.put(key, val) }

// PutUint8 stores a uint8 under key.
func (t *Txn) PutUint8(key string, val uint8) error { return t.put(key, val) }

// PutUint16 stores a uint16 under key.
func (t *Txn) PutUint16(key string, val uint16) error { return t.put(key, val) }

// PutUint32 stores a uint32 under key.
func (t *Txn) PutUint32(key string, val uint32) error { return t.put(key, val) }

// PutInt64 stores an int64 under key.
func (t *Txn) PutInt64(key string, val int64) error { return t.put(key, val) }

// PutInts stores an int slice under key.
func (t *Txn) PutInts(key string, val []int) error { return t.put(key, val) }
