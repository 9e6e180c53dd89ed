package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"
)

const fileExt = ".entry.json"

// fileTier is the serialized-string middle tier. Every entry is one JSON
// file named by the key's xxh3 hash; writes go through a tmp file and a
// rename so a crash never leaves a torn entry behind.
type fileTier struct {
	dir      string
	maxBytes int64

	mu    sync.Mutex
	index map[string]string // key -> file path
	size  int64
}

type fileEntry struct {
	Key      string `json:"key"`
	Payload  []byte `json:"payload"`
	StoredAt int64  `json:"stored_at"`
	TTLNs    int64  `json:"ttl_ns"`
}

func newFileTier(dir string, maxBytes int64) (*fileTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file tier dir: %w", err)
	}
	t := &fileTier{dir: dir, maxBytes: maxBytes, index: make(map[string]string)}
	if err := t.scan(); err != nil {
		return nil, err
	}
	return t, nil
}

// scan rebuilds the key index from whatever entries survived the last run.
func (t *fileTier) scan() error {
	des, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("scan file tier dir: %w", err)
	}
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileExt) {
			continue
		}
		path := filepath.Join(t.dir, de.Name())
		fe, err := readFileEntry(path)
		if err != nil {
			log.Err(err).Str("file", path).Msg("[file-tier] dropping unreadable entry")
			_ = os.Remove(path)
			continue
		}
		t.index[fe.Key] = path
		if info, err := de.Info(); err == nil {
			t.size += info.Size()
		}
	}
	return nil
}

func readFileEntry(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fe := &fileEntry{}
	if err = json.Unmarshal(data, fe); err != nil {
		return nil, err
	}
	return fe, nil
}

func (t *fileTier) ID() TierID { return TierSerialized }

func (t *fileTier) pathFor(key string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%016x%s", xxh3.HashString(key), fileExt))
}

func (t *fileTier) Get(key string) (*Entry, bool, error) {
	t.mu.Lock()
	path, ok := t.index[key]
	t.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	fe, err := readFileEntry(path)
	if err != nil {
		log.Err(err).Str("file", path).Msg("[file-tier] read error")
		return nil, false, err
	}
	if fe.Key != key {
		return nil, false, nil
	}
	return &Entry{
		Key:      fe.Key,
		Payload:  fe.Payload,
		StoredAt: time.Unix(0, fe.StoredAt),
		TTL:      time.Duration(fe.TTLNs),
		Tier:     TierSerialized,
	}, true, nil
}

func (t *fileTier) Set(entry *Entry) error {
	data, err := json.Marshal(&fileEntry{
		Key:      entry.Key,
		Payload:  entry.Payload,
		StoredAt: entry.StoredAt.UnixNano(),
		TTLNs:    int64(entry.TTL),
	})
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	path := t.pathFor(entry.Key)
	var oldSize int64
	if _, exists := t.index[entry.Key]; exists {
		if info, err := os.Stat(path); err == nil {
			oldSize = info.Size()
		}
	} else if t.maxBytes > 0 && t.size+int64(len(data)) > t.maxBytes {
		return ErrCapacity
	}

	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		log.Err(err).Str("file", tmp).Msg("[file-tier] write error")
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		log.Err(err).Str("file", tmp).Msg("[file-tier] rename error")
		return err
	}

	t.size += int64(len(data)) - oldSize
	t.index[entry.Key] = path
	return nil
}

func (t *fileTier) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(key)
}

func (t *fileTier) deleteLocked(key string) error {
	path, ok := t.index[key]
	if !ok {
		return nil
	}
	if info, err := os.Stat(path); err == nil {
		t.size -= info.Size()
	}
	delete(t.index, key)
	return os.Remove(path)
}

func (t *fileTier) Keys() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.index))
	for k := range t.index {
		keys = append(keys, k)
	}
	return keys, nil
}

func (t *fileTier) Len() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index), nil
}

func (t *fileTier) EvictOldest(fraction float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	quota := oldestQuota(len(t.index), fraction)
	if quota == 0 {
		return 0, nil
	}

	type aged struct {
		key      string
		storedAt int64
	}
	all := make([]aged, 0, len(t.index))
	for key, path := range t.index {
		fe, err := readFileEntry(path)
		if err != nil {
			_ = t.deleteLocked(key)
			continue
		}
		all = append(all, aged{key: key, storedAt: fe.StoredAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt < all[j].storedAt })

	if quota > len(all) {
		quota = len(all)
	}
	for _, a := range all[:quota] {
		_ = t.deleteLocked(a.key)
	}
	return quota, nil
}

func (t *fileTier) Close() error { return nil }
