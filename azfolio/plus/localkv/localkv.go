package localkv

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/ezquant/azfolio/azfolio/tools/log"
)

const memoryPath = ":memory:"

// ErrNotFound 表示键不存在
var ErrNotFound = buntdb.ErrNotFound

// LocalKV 本地键值缓存，用于保存已下载的行情分片
type LocalKV struct {
	db     *buntdb.DB
	dbPath string
}

// NewLocalKV 打开 dir/kv.db，dir 为 nil 时使用内存存储
func NewLocalKV(dir *string) (*LocalKV, error) {
	dbPath := memoryPath
	if dir != nil {
		if err := os.MkdirAll(*dir, 0755); err != nil {
			return nil, fmt.Errorf("localkv: create directory: %w", err)
		}
		dbPath = path.Join(*dir, "kv.db")
	}

	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("localkv: open %s: %w", dbPath, err)
	}

	// 行情分片可以重新下载，不需要每次写入都同步到磁盘
	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("localkv: configure: %w", err)
	}

	return &LocalKV{db: db, dbPath: dbPath}, nil
}

func (l *LocalKV) Close() error {
	return l.db.Close()
}

// Get 返回 key 对应的值，不存在时返回 ErrNotFound
func (l *LocalKV) Get(key string) (string, error) {
	var val string
	err := l.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return val, err
}

// Has 判断 key 是否存在
func (l *LocalKV) Has(key string) bool {
	_, err := l.Get(key)
	return err == nil
}

func (l *LocalKV) Set(key, value string) error {
	return l.SetWithTTL(key, value, 0)
}

// SetWithTTL 写入带过期时间的值，ttl <= 0 表示永不过期
func (l *LocalKV) SetWithTTL(key, value string, ttl time.Duration) error {
	var opts *buntdb.SetOptions
	if ttl > 0 {
		opts = &buntdb.SetOptions{Expires: true, TTL: ttl}
	}
	return l.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, opts)
		return err
	})
}

func (l *LocalKV) Delete(key string) error {
	err := l.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

// Keys 返回匹配 pattern 的所有键，例如 "poloniex:BTC_ETH:*"
func (l *LocalKV) Keys(pattern string) ([]string, error) {
	var keys []string
	err := l.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pattern, func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
	})
	return keys, err
}

// RemoveDB 关闭并删除数据库文件
func (l *LocalKV) RemoveDB() error {
	if l.db != nil {
		l.db.Close()
	}

	if l.dbPath != memoryPath && l.dbPath != "" {
		if err := os.Remove(l.dbPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("localkv: remove %s: %v", l.dbPath, err)
			return err
		}
	}
	return nil
}
