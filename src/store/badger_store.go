package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	transactionPrefix = "tx"
	unconfirmedPrefix = "unconfirmed"
)

// BadgerStore persists transactions and the unconfirmed set in a Badger
// database. Recently used transactions are kept in an LRU cache.
type BadgerStore struct {
	db      *badger.DB
	txCache *lru.Cache[common.Hash, *data.TransactionData]
	path    string
	logger  *logrus.Entry
}

// unconfirmedRecord is the persisted form of an unconfirmed entry.
type unconfirmedRecord struct {
	TransactionHash []byte
	CreatedTime     int64
	Retries         int
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	} else {
		logger = logrus.NewEntry(logrus.New())
	}

	cache, err := lru.New[common.Hash, *data.TransactionData](cacheSize)
	if err != nil {
		return nil, err
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:      handle,
		txCache: cache,
		path:    path,
		logger:  logger,
	}, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func transactionKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s_%s", transactionPrefix, hash))
}

func unconfirmedKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s_%s", unconfirmedPrefix, hash))
}

/*******************************************************************************
TransactionStore
*******************************************************************************/

// GetTransaction implements TransactionStore.
func (s *BadgerStore) GetTransaction(hash common.Hash) (*data.TransactionData, error) {
	if tx, ok := s.txCache.Get(hash); ok {
		res := *tx
		return &res, nil
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(transactionKey(hash))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Transaction", hash.String())
	}

	msg, err := data.Unmarshal(data.TransactionDataClass, raw)
	if err != nil {
		return nil, err
	}
	tx := msg.(*data.TransactionData)

	s.txCache.Add(hash, tx)

	res := *tx
	return &res, nil
}

// SetTransaction implements TransactionStore.
func (s *BadgerStore) SetTransaction(tx *data.TransactionData) error {
	val, err := data.Marshal(tx)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(transactionKey(tx.Hash), val)
	})
	if err != nil {
		return err
	}

	cp := *tx
	s.txCache.Add(tx.Hash, &cp)
	return nil
}

// DeleteTransaction implements TransactionStore.
func (s *BadgerStore) DeleteTransaction(hash common.Hash) error {
	s.txCache.Remove(hash)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(transactionKey(hash))
	})
}

/*******************************************************************************
UnconfirmedStore
*******************************************************************************/

// PutUnconfirmed implements UnconfirmedStore.
func (s *BadgerStore) PutUnconfirmed(entry *data.UnconfirmedReceivedTransactionHashData) error {
	val, err := encodeRecord(&unconfirmedRecord{
		TransactionHash: entry.TransactionHash.Bytes(),
		CreatedTime:     entry.CreatedTime.UnixNano(),
		Retries:         entry.Retries,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(unconfirmedKey(entry.TransactionHash), val)
	})
}

// GetUnconfirmed implements UnconfirmedStore.
func (s *BadgerStore) GetUnconfirmed(hash common.Hash) (*data.UnconfirmedReceivedTransactionHashData, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(unconfirmedKey(hash))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Unconfirmed", hash.String())
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.entry(), nil
}

// DeleteUnconfirmed implements UnconfirmedStore.
func (s *BadgerStore) DeleteUnconfirmed(hash common.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(unconfirmedKey(hash))
	})
}

// ForEachUnconfirmed implements UnconfirmedStore. Records that cannot be
// decoded are removed from the database.
func (s *BadgerStore) ForEachUnconfirmed(fn func(entry *data.UnconfirmedReceivedTransactionHashData)) error {
	entries := []*data.UnconfirmedReceivedTransactionHashData{}
	corrupt := [][]byte{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(unconfirmedPrefix + "_")

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				s.logger.WithError(err).WithField("key", string(it.Item().Key())).Error("Dropping corrupt unconfirmed record")
				corrupt = append(corrupt, it.Item().KeyCopy(nil))
				continue
			}
			entries = append(entries, rec.entry())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(corrupt) > 0 {
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, k := range corrupt {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Error("Deleting corrupt unconfirmed records")
		}
	}

	for _, e := range entries {
		fn(e)
	}
	return nil
}

/*******************************************************************************
Store
*******************************************************************************/

// Close implements Store.
func (s *BadgerStore) Close() error {
	s.txCache.Purge()
	return s.db.Close()
}

// StorePath implements Store.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func encodeRecord(rec *unconfirmedRecord) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, new(codec.MsgpackHandle))
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (rec *unconfirmedRecord) entry() *data.UnconfirmedReceivedTransactionHashData {
	return &data.UnconfirmedReceivedTransactionHashData{
		TransactionHash: common.BytesToHash(rec.TransactionHash),
		CreatedTime:     time.Unix(0, rec.CreatedTime),
		Retries:         rec.Retries,
	}
}

func decodeRecord(raw []byte) (*unconfirmedRecord, error) {
	rec := new(unconfirmedRecord)
	dec := codec.NewDecoder(bytes.NewBuffer(raw), new(codec.MsgpackHandle))
	if err := dec.Decode(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return common.NewStoreErr(name, common.KeyNotFound, key)
		}
	}
	return err
}
