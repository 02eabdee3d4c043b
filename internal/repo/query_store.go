package repo

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"manualbase/internal/models"
)

// QueryStore — история запросов к ассистенту.
type QueryStore interface {
	Record(ctx context.Context, rec *models.QueryRecord) error
	Recent(ctx context.Context, limit int) ([]models.QueryRecord, error)
	Count(ctx context.Context) (int64, error)
}

// NewQueryStore выбирает хранилище: gorm при наличии БД, иначе память.
func NewQueryStore(db *gorm.DB, memCapacity int) QueryStore {
	if db == nil {
		return NewMemQueryStore(memCapacity)
	}
	return NewGormQueryStore(db)
}

type GormQueryStore struct{ db *gorm.DB }

func NewGormQueryStore(db *gorm.DB) *GormQueryStore { return &GormQueryStore{db: db} }

func (s *GormQueryStore) Record(ctx context.Context, rec *models.QueryRecord) error {
	if len(rec.Filters) == 0 {
		rec.Filters = []byte("{}")
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormQueryStore) Recent(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	var out []models.QueryRecord
	if err := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormQueryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.QueryRecord{}).Count(&n).Error
	return n, err
}

// MemQueryStore — кольцевой буфер последних записей, когда БД не настроена.
type MemQueryStore struct {
	mu     sync.Mutex
	buf    []models.QueryRecord
	next   int
	full   bool
	nextID uint
	total  int64
}

func NewMemQueryStore(capacity int) *MemQueryStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemQueryStore{buf: make([]models.QueryRecord, capacity)}
}

func (s *MemQueryStore) Record(_ context.Context, rec *models.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.buf[s.next] = *rec
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}
	s.total++
	return nil
}

func (s *MemQueryStore) Recent(_ context.Context, limit int) ([]models.QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.QueryRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out, nil
}

// Count — всего записей за время работы, включая вытесненные.
func (s *MemQueryStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

// ProductShare — доля запросов по продукту.
type ProductShare struct {
	Product string
	Count   int
	Percent int
}

// TopProducts считает самые частые продукты в фильтрах записей.
// Записи без выбранного продукта не учитываются.
func TopProducts(recs []models.QueryRecord, n int) []ProductShare {
	counts := make(map[string]int)
	total := 0
	for _, r := range recs {
		var sel models.Selection
		if err := json.Unmarshal(r.Filters, &sel); err != nil || sel.ProductName == "" {
			continue
		}
		counts[sel.ProductName]++
		total++
	}
	out := make([]ProductShare, 0, len(counts))
	for p, c := range counts {
		out = append(out, ProductShare{Product: p, Count: c, Percent: c * 100 / total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Product < out[j].Product
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
