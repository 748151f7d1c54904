// Package archive persists named checkpoints outside the process so a later
// run can load their values back.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"

	"github.com/AnatoleLucet/rewind/value"
)

var (
	ErrNotFound  = errors.New("archived checkpoint not found")
	ErrEmptyName = errors.New("archived checkpoint needs a name")
)

const keyPrefix = "checkpoint/"

// Record is one archived checkpoint.
type Record struct {
	ID        string                 `json:"id"`
	Core      string                 `json:"core"`
	Name      string                 `json:"name"`
	Seq       uint64                 `json:"seq"`
	CreatedAt time.Time              `json:"created_at"`
	Values    map[string]value.Value `json:"values"`
}

type Options struct {
	// Path of the badger directory, ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

type Archive struct {
	db     *badger.DB
	logger *slog.Logger
}

func Open(opts Options) (*Archive, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("archive: path is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = &badgerLogger{logger: opts.Logger}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}

	opts.Logger.Debug("archive opened", "path", opts.Path, "in_memory", opts.InMemory)
	return &Archive{db: db, logger: opts.Logger}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Save stores rec under its name, replacing an older record of that name.
// Values holding funcs cannot be stored and are left out.
func (a *Archive) Save(rec Record) (Record, error) {
	if rec.Name == "" {
		return Record{}, ErrEmptyName
	}

	rec.ID = ulid.Make().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	values := make(map[string]value.Value, len(rec.Values))
	for name, v := range rec.Values {
		if _, err := value.Encode(v); err != nil {
			a.logger.Debug("archive skips value", "checkpoint", rec.Name, "name", name, "error", err)
			continue
		}
		values[name] = v
	}
	rec.Values = values

	data, err := sonic.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("archive: encode %q: %w", rec.Name, err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.Name), data)
	})
	if err != nil {
		return Record{}, fmt.Errorf("archive: save %q: %w", rec.Name, err)
	}
	return rec, nil
}

func (a *Archive) Load(name string) (Record, error) {
	var rec Record

	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			return err
		}
		return item.Value(func(data []byte) error {
			return sonic.Unmarshal(data, &rec)
		})
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns every record in name order.
func (a *Archive) List() ([]Record, error) {
	var recs []Record

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var rec Record
			err := item.Value(func(data []byte) error {
				return sonic.Unmarshal(data, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(item.Key()), keyPrefix), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return recs, nil
}

func (a *Archive) Delete(name string) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			return err
		}
		return txn.Delete(key(name))
	})
	return err
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
