package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"taskboard/auth"
)

// Badger persists the credential in an embedded BadgerDB, the process-local
// equivalent of the browser's localStorage.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the credential database at path. An empty
// path opens an in-memory database, which tests use.
func OpenBadger(path string) (*Badger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close releases the underlying database.
func (b *Badger) Close() error { return b.db.Close() }

func (b *Badger) Save(ctx context.Context, cred auth.Credential) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyAccessToken), []byte(cred.AccessToken)); err != nil {
			return err
		}
		if cred.RefreshToken == "" {
			if err := txn.Delete([]byte(keyRefreshToken)); err != nil {
				return err
			}
		} else if err := txn.Set([]byte(keyRefreshToken), []byte(cred.RefreshToken)); err != nil {
			return err
		}
		expiry := strconv.FormatInt(cred.Expiry.UnixMilli(), 10)
		return txn.Set([]byte(keyExpiry), []byte(expiry))
	})
}

func (b *Badger) Load(ctx context.Context) (auth.Credential, bool, error) {
	var cred auth.Credential
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		access, err := getString(txn, keyAccessToken)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		expiryRaw, err := getString(txn, keyExpiry)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		millis, err := strconv.ParseInt(expiryRaw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse stored expiry %q: %w", expiryRaw, err)
		}
		refresh, err := getString(txn, keyRefreshToken)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		cred = auth.Credential{
			AccessToken:  access,
			RefreshToken: refresh,
			Expiry:       time.UnixMilli(millis),
		}
		found = true
		return nil
	})
	if err != nil {
		return auth.Credential{}, false, err
	}
	return cred, found, nil
}

func (b *Badger) Clear(ctx context.Context) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{keyAccessToken, keyRefreshToken, keyExpiry} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}
