package cache

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketImages = []byte("images")
	// key -> 写入时间（unix 秒，大端）
	bucketStored = []byte("stored")
)

// 每写入这么多次清理一次
const pruneEvery = 64

// Disk 持久化的图片缓存，key 为 URL 的 md5
type Disk struct {
	db         *bolt.DB
	maxEntries int
	maxAge     time.Duration
	puts       atomic.Int64
	now        func() time.Time
}

// OpenDisk 打开或创建缓存文件
func OpenDisk(path string) (*Disk, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "创建缓存目录失败")
		}
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "打开缓存文件失败")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketImages); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketStored)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "初始化缓存失败")
	}
	return &Disk{db: db, now: time.Now}, nil
}

// SetLimit 设置条目上限与保存时长，0 表示不限制
func (d *Disk) SetLimit(maxEntries int, maxAge time.Duration) {
	d.maxEntries = maxEntries
	d.maxAge = maxAge
}

// Key URL 对应的缓存 key
func Key(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get 读取缓存，返回的切片可以安全持有
func (d *Disk) Get(key string) ([]byte, bool) {
	var out []byte
	_ = d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketImages).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

// Put 写入缓存，每写入 pruneEvery 次清理一次过期和超量的条目
func (d *Disk) Put(key string, data []byte) error {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(d.now().Unix()))
	err := d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketImages).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketStored).Put([]byte(key), ts[:])
	})
	if err != nil {
		return err
	}
	if d.puts.Add(1)%pruneEvery == 0 {
		if _, err := d.Prune(); err != nil {
			log.Warnf("[缓存] 清理图片缓存失败: %v", err)
		}
	}
	return nil
}

// Prune 删除超过保存时长的条目，再按写入时间从旧到新删除超出上限的条目，返回删除数量。
// 没有写入时间的条目视为最旧
func (d *Disk) Prune() (int, error) {
	if d.maxEntries <= 0 && d.maxAge <= 0 {
		return 0, nil
	}
	type entry struct {
		key    []byte
		stored int64
	}
	removed := 0
	err := d.db.Update(func(tx *bolt.Tx) error {
		images, stored := tx.Bucket(bucketImages), tx.Bucket(bucketStored)
		var entries []entry
		err := images.ForEach(func(k, _ []byte) error {
			e := entry{key: append([]byte(nil), k...)}
			if v := stored.Get(k); len(v) == 8 {
				e.stored = int64(binary.BigEndian.Uint64(v))
			}
			entries = append(entries, e)
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].stored < entries[j].stored })

		drop := 0
		if d.maxAge > 0 {
			cutoff := d.now().Add(-d.maxAge).Unix()
			for drop < len(entries) && entries[drop].stored < cutoff {
				drop++
			}
		}
		if d.maxEntries > 0 && len(entries)-drop > d.maxEntries {
			drop = len(entries) - d.maxEntries
		}
		for _, e := range entries[:drop] {
			if err := images.Delete(e.key); err != nil {
				return err
			}
			if err := stored.Delete(e.key); err != nil {
				return err
			}
		}
		removed = drop
		return nil
	})
	return removed, errors.Wrap(err, "清理缓存失败")
}

// Count 缓存条目数
func (d *Disk) Count() int {
	n := 0
	_ = d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketImages).Stats().KeyN
		return nil
	})
	return n
}

// Close 关闭缓存文件
func (d *Disk) Close() error {
	return d.db.Close()
}
