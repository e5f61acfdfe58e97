package tokens

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.etcd.io/bbolt"
)

var tokensBucketKey = []byte("tokens")

func cacheKey(chainID int64, addr common.Address) []byte {
	return []byte(strconv.FormatInt(chainID, 10) + ":" + addr.Hex())
}

// BoltCache persists token metadata in a single bbolt file.
type BoltCache struct {
	db *bbolt.DB
}

func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open token cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokensBucketKey)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tokens bucket: %w", err)
	}
	return &BoltCache{db: db}, nil
}

func (c *BoltCache) Get(chainID int64, addr common.Address) (Token, bool, error) {
	var t Token
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(tokensBucketKey).Get(cacheKey(chainID, addr))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &t)
	})
	if err != nil {
		return Token{}, false, fmt.Errorf("read token cache: %w", err)
	}
	return t, found, nil
}

func (c *BoltCache) Put(t Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tokensBucketKey).Put(cacheKey(t.ChainID, t.Address), raw)
	})
}

// Len returns the number of cached tokens.
func (c *BoltCache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(tokensBucketKey).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *BoltCache) Close() error { return c.db.Close() }

// MemoryCache is used when no cache path is configured.
type MemoryCache struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]Token)}
}

func (c *MemoryCache) Get(chainID int64, addr common.Address) (Token, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[string(cacheKey(chainID, addr))]
	return t, ok, nil
}

func (c *MemoryCache) Put(t Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[string(cacheKey(t.ChainID, t.Address))] = t
	return nil
}

func (c *MemoryCache) Close() error { return nil }
