// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package buntdbsession stores login sessions (cookie value -> login)
// in BuntDB (https://github.com/tidwall/buntdb) with per key expiry.
package buntdbsession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/buntdb"
)

const keyPrefix = "session:"

var (
	// DefaultTTL is used by Set when a non-positive TTL is given.
	DefaultTTL time.Duration = 24 * time.Hour

	// ErrNotFound is returned for unknown and expired sessions.
	ErrNotFound = errors.New("session not found")
)

// New opens (or creates) the BuntDB file at path. ":memory:" keeps
// everything in memory.
func New(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		db: db,
	}, nil
}

type Store struct {
	db *buntdb.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the login bound to id.
func (s *Store) Get(id string) (string, error) {
	var login string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(keyPrefix + id)
		if err != nil {
			return err
		}
		login = v
		return nil
	})
	if err != nil {
		if err == buntdb.ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("problem reading session: %v", err)
	}
	return login, nil
}

// Set binds id to login for ttl.
func (s *Store) Set(id, login string, ttl time.Duration) error {
	if id == "" || login == "" {
		return fmt.Errorf("buntdbsession: empty id or login")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+id, login, &buntdb.SetOptions{
			Expires: true,
			TTL:     ttl,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("problem writing session for %s: %v", login, err)
	}
	return nil
}

// DeleteByLogin drops every session bound to login and returns how many
// were removed.
func (s *Store) DeleteByLogin(login string) (int, error) {
	var deleted int
	err := s.db.Update(func(tx *buntdb.Tx) error {
		// buntdb doesn't allow deletes while iterating
		var keys []string
		err := tx.Ascend("", func(key, value string) bool {
			if strings.HasPrefix(key, keyPrefix) && value == login {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for i := range keys {
			if _, err := tx.Delete(keys[i]); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("problem deleting sessions for %s: %v", login, err)
	}
	return deleted, nil
}
