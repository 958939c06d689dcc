// Package boltstore persists a world and its attachments in a bbolt file.
package boltstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/quest"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database holding one world.
type Store struct {
	bolt *bbolt.DB
}

var allBuckets = [][]byte{bucketMeta, bucketEntities, bucketAttachments, bucketLeaders}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}
	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// recreate empties a bucket.
func recreate(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket(name)
}

// SaveWorld replaces the stored world with the live one in a single
// transaction.
func (s *Store) SaveWorld(world *gamedb.World, reg *attach.Registry) error {
	var ents, atts int
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		eb, err := recreate(tx, bucketEntities)
		if err != nil {
			return err
		}
		ab, err := recreate(tx, bucketAttachments)
		if err != nil {
			return err
		}

		var werr error
		world.Each(func(e *gamedb.Entity) {
			if werr != nil {
				return
			}
			if werr = putEntity(eb, e); werr != nil {
				return
			}
			ents++
			n, err := putAttachments(ab, e, reg.On(e))
			atts += n
			werr = err
		})
		if werr != nil {
			return werr
		}

		if err := putLeaders(tx, quest.LeadersOf(reg.Env())); err != nil {
			return err
		}
		return putMeta(tx.Bucket(bucketMeta), world.NextSerial())
	})
	if err != nil {
		return fmt.Errorf("boltstore: save: %w", err)
	}
	log.Printf("boltstore: saved %d entities, %d attachments", ents, atts)
	return nil
}

func putEntity(b *bbolt.Bucket, e *gamedb.Entity) error {
	data, err := encodeEntity(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.Serial, err)
	}
	return b.Put(refToKey(e.Serial), data)
}

// putAttachments writes the live attachments of one entity.
func putAttachments(b *bbolt.Bucket, e *gamedb.Entity, list []attach.Attachment) (int, error) {
	n := 0
	for _, a := range list {
		if a.Core().IsDeleted() {
			continue
		}
		data, err := encodeAttachment(a)
		if err != nil {
			return n, fmt.Errorf("encode %s on %s: %w", a.RecordType(), e.Serial, err)
		}
		if err := b.Put(attachmentKey(e.Serial, n), data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// deletePrefix removes every key starting with prefix.
func deletePrefix(b *bbolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func putLeaders(tx *bbolt.Tx, l *quest.Leaders) error {
	b, err := recreate(tx, bucketLeaders)
	if err != nil || l == nil {
		return err
	}
	for _, st := range l.Top(0) {
		data, err := encodeLeader(rowOf(st))
		if err != nil {
			return fmt.Errorf("encode leader %q: %w", st.Name, err)
		}
		if err := b.Put(intToKey(st.Rank), data); err != nil {
			return err
		}
	}
	return nil
}

func putMeta(b *bbolt.Bucket, next gamedb.DBRef) error {
	if err := b.Put(keyFormat, intToKey(formatVersion)); err != nil {
		return err
	}
	if err := b.Put(keyNextSerial, refToKey(next)); err != nil {
		return err
	}
	return b.Put(keySavedAt, intToKey(int(time.Now().Unix())))
}

// LoadWorld reads the stored world into world and reg, which should be
// empty. Behavior and attachment type names are resolved against the two
// registries. Malformed records fail the whole load and leave world and
// reg untouched; unknown types and dangling references are logged, counted
// and skipped.
func (s *Store) LoadWorld(world *gamedb.World, reg *attach.Registry, behaviors, attachments *codec.Registry) (attach.LoadStats, error) {
	l := attach.NewLoader(behaviors, attachments)
	next := gamedb.DBRef(1)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyFormat); v != nil && keyToInt(v) > formatVersion {
			return fmt.Errorf("format %d is newer than %d", keyToInt(v), formatVersion)
		}
		if v := tx.Bucket(bucketMeta).Get(keyNextSerial); v != nil {
			next = keyToRef(v)
		}
		err := tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			if err := l.Entity(reader(v)); err != nil {
				return fmt.Errorf("load entity %s: %w", keyToRef(k), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAttachments).ForEach(func(k, v []byte) error {
			if err := l.Attachment(reader(v)); err != nil {
				return fmt.Errorf("load attachment %d on %s: %w", keyToInt(k[8:]), keyToRef(k[:8]), err)
			}
			return nil
		})
	})
	if err != nil {
		return attach.LoadStats{}, fmt.Errorf("boltstore: %w", err)
	}
	stats := l.Commit(world, reg, next)
	log.Printf("boltstore: loaded %v", stats)
	return stats, nil
}

// PutEntity persists a single entity and its attachments (write-through).
func (s *Store) PutEntity(e *gamedb.Entity, reg *attach.Registry) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := putEntity(tx.Bucket(bucketEntities), e); err != nil {
			return err
		}
		ab := tx.Bucket(bucketAttachments)
		if err := deletePrefix(ab, refToKey(e.Serial)); err != nil {
			return err
		}
		_, err := putAttachments(ab, e, reg.On(e))
		return err
	})
	if err != nil {
		return fmt.Errorf("boltstore: put %s: %w", e.Serial, err)
	}
	return nil
}

// DeleteEntity removes an entity and its attachments from bbolt.
func (s *Store) DeleteEntity(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketEntities).Delete(refToKey(ref)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(bucketAttachments), refToKey(ref))
	})
}

// Leaders returns the ranking stored by the last SaveWorld, best first.
func (s *Store) Leaders() ([]LeaderRow, error) {
	var rows []LeaderRow
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLeaders).ForEach(func(k, v []byte) error {
			r, err := decodeLeader(v)
			if err != nil {
				return fmt.Errorf("decode leader %d: %w", keyToInt(k), err)
			}
			rows = append(rows, r)
			return nil
		})
	})
	return rows, err
}

// Counts returns the number of stored entities and attachments.
func (s *Store) Counts() (entities, attachments int) {
	s.bolt.View(func(tx *bbolt.Tx) error {
		entities = tx.Bucket(bucketEntities).Stats().KeyN
		attachments = tx.Bucket(bucketAttachments).Stats().KeyN
		return nil
	})
	return entities, attachments
}

// HasData returns true if the bbolt database contains any entities.
func (s *Store) HasData() bool {
	n, _ := s.Counts()
	return n > 0
}

// Snapshot writes a consistent copy of the database to w using tx.WriteTo.
func (s *Store) Snapshot(w io.Writer) (int64, error) {
	var n int64
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("boltstore: snapshot: %w", err)
	}
	return n, nil
}

// Backup creates a hot snapshot of the bbolt database at path.
func (s *Store) Backup(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("boltstore: create backup %s: %w", path, err)
	}
	defer f.Close()
	if _, err := s.Snapshot(f); err != nil {
		return err
	}
	log.Printf("boltstore: backup written to %s", path)
	return nil
}
