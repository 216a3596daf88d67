package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"watchbot/pkg/logx"
)

// fileStore keeps everything next to cfg.Path:
//
//	<prefix>.deliveries.jsonl     append-only delivery log
//	<prefix>.dedup.snapshot.json  compacted dedup map
//	<prefix>.dedup.journal.jsonl  dedup writes since the last snapshot
//
// The newest HistoryLimit deliveries are also kept in memory for Recent.
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	deliveries *os.File
	recent     []Delivery // oldest first
	limit      int

	snapPath string
	journal  *os.File
	dedup    map[string]int64 // unix milli
	writes   int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	deliveryPath := prefix + ".deliveries.jsonl"

	s := &fileStore{
		log:      log,
		limit:    historyLimit(cfg),
		snapPath: prefix + ".dedup.snapshot.json",
		dedup:    map[string]int64{},
	}
	if err := s.loadRecent(deliveryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery log unreadable", logx.Err(err))
	}
	if err := loadSnapshot(s.snapPath, s.dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup snapshot unreadable", logx.Err(err))
	}
	journalPath := prefix + ".dedup.journal.jsonl"
	if err := replayJournal(journalPath, s.dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup journal unreadable", logx.Err(err))
	}
	pruneMap(s.dedup, time.Now())

	var err error
	if s.deliveries, err = os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		return nil, err
	}
	if s.journal, err = os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600); err != nil {
		_ = s.deliveries.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Driver() string { return "file" }

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.compactLocked(), s.journal.Close())
		s.journal = nil
	}
	if s.deliveries != nil {
		errs = append(errs, s.deliveries.Close())
		s.deliveries = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendDelivery(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.deliveries).Encode(d); err != nil {
		return err
	}
	s.pushRecent(d)
	return nil
}

func (s *fileStore) pushRecent(d Delivery) {
	s.recent = append(s.recent, d)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

func (s *fileStore) RecentDeliveries(_ context.Context, limit int) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(clampLimit(limit, s.limit), len(s.recent))
	out := make([]Delivery, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) loadRecent(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var d Delivery
		if json.Unmarshal(sc.Bytes(), &d) == nil && d.ID != "" {
			s.pushRecent(d)
		}
	}
	return sc.Err()
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	ms := until.UnixMilli()
	s.dedup[key] = ms
	if err := json.NewEncoder(s.journal).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[strings.TrimSpace(key)]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) PruneDedup(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := pruneMap(s.dedup, now)
	if n > 0 && s.journal != nil {
		if err := s.compactLocked(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// compactLocked writes the dedup map to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	if s.journal == nil {
		return nil
	}
	tmp := s.snapPath + ".tmp"
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if json.Unmarshal(sc.Bytes(), &r) == nil && r.Key != "" {
			out[r.Key] = r.Until
		}
	}
	return sc.Err()
}

func pruneMap(m map[string]int64, now time.Time) int {
	cut := now.UnixMilli()
	n := 0
	for k, v := range m {
		if v < cut {
			delete(m, k)
			n++
		}
	}
	return n
}
