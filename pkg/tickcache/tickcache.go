package tickcache

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "tickcache")

// Cache 最近价格的本地持久缓存（Badger）
//
// 只服务展示预热：重启后在第一个真实事件到来之前让快照有个最近价。
// 决策路径从不读这里，写入失败也只记日志。
type Cache struct {
	db *badger.DB
}

// Entry 一条缓存价格
type Entry struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// Open 打开（或创建）缓存
func Open(path string) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tickcache: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Put 记录一个标的的最近价，key 为标的键（InstrumentKey.String()）
func (c *Cache) Put(key string, price float64, at time.Time) {
	if c == nil || c.db == nil || key == "" || price <= 0 {
		return
	}
	data, err := json.Marshal(Entry{Price: price, At: at})
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		log.Debugf("缓存写入失败: %s err=%v", key, err)
	}
}

// Get 取一个标的的缓存价
func (c *Cache) Get(key string) (Entry, bool) {
	var entry Entry
	if c == nil || c.db == nil || key == "" {
		return entry, false
	}
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		log.Debugf("缓存读取失败: %s err=%v", key, err)
		return Entry{}, false
	}
	return entry, found
}

// Walk 遍历全部缓存条目（启动预热用）
func (c *Cache) Walk(fn func(key string, entry Entry)) error {
	if c == nil || c.db == nil {
		return errors.New("tickcache: not opened")
	}
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return nil // 跳过坏条目
				}
				fn(key, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭底层库
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
