// Package catalog держит список компаний и руководств, загруженный из
// хранилища документов.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"manualbase/internal/backend"
	"manualbase/internal/models"
)

const (
	msgBackendDown = "Backend server is not running. Please start the backend server."
	msgLoadFailed  = "Failed to load data from backend. Please check if the backend server is running."
)

// Source — то, что каталогу нужно от API.
type Source interface {
	Health(ctx context.Context) (backend.HealthResponse, error)
	Companies(ctx context.Context) ([]string, error)
	Models(ctx context.Context, company string) ([]models.Manual, error)
}

// LoadError — каталог не удалось обновить; прежний снимок сохранён.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string { return e.Message }
func (e *LoadError) Unwrap() error { return e.Err }

type Catalog struct {
	src Source
	log logrus.FieldLogger

	issued atomic.Uint64

	mu      sync.RWMutex
	applied uint64
	snap    Snapshot
}

func New(src Source, log logrus.FieldLogger) *Catalog {
	return &Catalog{src: src, log: log}
}

// Refresh перечитывает компании и руководства. Ответ, начатый раньше уже
// применённого, отбрасывается; возвращается актуальный снимок. Ошибка
// загрузки моделей одной компании только логируется.
func (c *Catalog) Refresh(ctx context.Context) (Snapshot, error) {
	seq := c.issued.Add(1)

	if _, err := c.src.Health(ctx); err != nil {
		c.log.WithError(err).Warn("catalog: backend health check failed")
		return c.Snapshot(), &LoadError{Message: msgBackendDown, Err: err}
	}
	companies, err := c.src.Companies(ctx)
	if err != nil {
		c.log.WithError(err).Warn("catalog: load companies")
		return c.Snapshot(), &LoadError{Message: msgLoadFailed, Err: err}
	}

	var manuals []models.Manual
	for _, company := range companies {
		ms, err := c.src.Models(ctx, company)
		if err != nil {
			c.log.WithError(err).WithField("company", company).Warn("catalog: load models")
			continue
		}
		manuals = append(manuals, ms...)
	}

	next := Snapshot{
		Seq:       seq,
		Companies: companies,
		Manuals:   manuals,
		LoadedAt:  time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		c.log.WithFields(logrus.Fields{"seq": seq, "applied": c.applied}).Debug("catalog: stale refresh dropped")
		return c.snap, nil
	}
	c.applied, c.snap = seq, next
	c.log.WithFields(logrus.Fields{"companies": len(companies), "manuals": len(manuals)}).Debug("catalog: refreshed")
	return next, nil
}

func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Snapshot — неизменяемое состояние каталога.
type Snapshot struct {
	Seq       uint64
	Companies []string
	Manuals   []models.Manual
	LoadedAt  time.Time
}

func (s Snapshot) Loaded() bool { return s.Seq > 0 }

// Empty — нет ни одного руководства: запросы к ассистенту бессмысленны.
func (s Snapshot) Empty() bool { return len(s.Manuals) == 0 }

// Filter — поиск без учёта регистра по компании, продукту и имени файла.
func (s Snapshot) Filter(term string) []models.Manual {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.Manuals
	}
	var out []models.Manual
	for _, m := range s.Manuals {
		if strings.Contains(strings.ToLower(m.CompanyName), term) ||
			strings.Contains(strings.ToLower(m.ProductName), term) ||
			strings.Contains(strings.ToLower(m.Filename), term) {
			out = append(out, m)
		}
	}
	return out
}

// Products — уникальные названия продуктов компании в порядке сортировки.
func (s Snapshot) Products(company string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range s.Manuals {
		if m.CompanyName != company {
			continue
		}
		if _, ok := seen[m.ProductName]; ok {
			continue
		}
		seen[m.ProductName] = struct{}{}
		out = append(out, m.ProductName)
	}
	sort.Strings(out)
	return out
}

var ErrUnknownManual = errors.New("no manual for company and product")

// Select выбирает руководство по (компания, продукт); код продукта
// берётся из имени файла. Пустой продукт выбирает только компанию.
func (s Snapshot) Select(company, product string) (models.Selection, error) {
	company, product = strings.TrimSpace(company), strings.TrimSpace(product)
	if product == "" {
		return models.Selection{CompanyName: company}, nil
	}
	for _, m := range s.Manuals {
		if m.CompanyName == company && m.ProductName == product {
			return models.Selection{CompanyName: company, ProductName: product, ProductCode: m.Filename}, nil
		}
	}
	return models.Selection{}, ErrUnknownManual
}

func (s Snapshot) HasCompany(name string) bool {
	for _, c := range s.Companies {
		if c == name {
			return true
		}
	}
	return false
}

// Unindexed — файлы хранилища без записи руководства (загрузка не дошла
// до индекса или запись удалена).
func (s Snapshot) Unindexed(files []string) []string {
	known := make(map[string]struct{}, len(s.Manuals))
	for _, m := range s.Manuals {
		known[m.Filename] = struct{}{}
	}
	var out []string
	for _, f := range files {
		if _, ok := known[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}
