package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	logx "praypal/pkg/logx"
)

var prefPrefix = []byte("pref/")

type badgerStore struct {
	db  *badger.DB
	log logx.Logger
}

// badgerRecord is the JSON value stored under pref/<id>.
type badgerRecord struct {
	Location  string    `json:"location,omitempty"`
	LeadTime  *int      `json:"lead_time,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func openBadger(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("badger path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("badger path: %w", err)
	}
	opts := badger.DefaultOptions(abs)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Debug("badger store opened", logx.String("path", abs))
	return &badgerStore{db: db, log: log}, nil
}

// prefKey orders keys numerically for non-negative ids; ListSubscriberIDs sorts anyway.
func prefKey(id int64) []byte {
	k := make([]byte, len(prefPrefix)+8)
	copy(k, prefPrefix)
	binary.BigEndian.PutUint64(k[len(prefPrefix):], uint64(id))
	return k
}

func (s *badgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *badgerStore) get(txn *badger.Txn, id int64) (badgerRecord, bool, error) {
	var rec badgerRecord
	item, err := txn.Get(prefKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) })
	return rec, err == nil, err
}

func (s *badgerStore) put(txn *badger.Txn, id int64, rec badgerRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(prefKey(id), b)
}

func (s *badgerStore) GetPreference(ctx context.Context, id int64) (Preference, bool, error) {
	if err := ctx.Err(); err != nil {
		return Preference{}, false, err
	}
	var (
		rec badgerRecord
		ok  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, ok, err = s.get(txn, id)
		return err
	})
	if err != nil || !ok {
		return Preference{}, false, err
	}
	return Preference{
		SubscriberID: id,
		Location:     rec.Location,
		LeadTime:     rec.LeadTime,
		Active:       rec.Active,
		UpdatedAt:    rec.UpdatedAt,
	}, true, nil
}

func (s *badgerStore) PutPreference(ctx context.Context, id int64, location string, leadTime *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := badgerRecord{
		Location:  strings.TrimSpace(location),
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
	if leadTime != nil {
		v := *leadTime
		rec.LeadTime = &v
	}
	return s.db.Update(func(txn *badger.Txn) error { return s.put(txn, id, rec) })
}

func (s *badgerStore) ListSubscriberIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) != len(prefPrefix)+8 {
				continue
			}
			ids = append(ids, int64(binary.BigEndian.Uint64(k[len(prefPrefix):])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *badgerStore) Deactivate(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		rec, ok, err := s.get(txn, id)
		if err != nil || !ok {
			return err
		}
		v := InactiveLeadTime
		rec.LeadTime = &v
		rec.Active = false
		rec.UpdatedAt = time.Now().UTC()
		return s.put(txn, id, rec)
	})
}
