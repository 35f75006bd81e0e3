// Package memstore is an in-process core.Store used for tests, demos and the
// "memory" driver. Records are lost when the process exits.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

var errClosed = errors.New("memstore: store is closed")

// Store keeps records in insertion order behind a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records []core.Record
	byID    map[string]int
	closed  bool
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{byID: make(map[string]int)}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) InsertMany(ctx context.Context, rows []core.ImportRow) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}

	for _, row := range rows {
		rec := core.Record{
			// Same id shape as the Mongo backend so links and tests look identical.
			ID:         primitive.NewObjectID().Hex(),
			Name:       row.Name,
			Mobile:     row.Mobile,
			Categories: core.DefaultCategory,
		}
		s.byID[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}
	return len(rows), nil
}

func (s *Store) Find(ctx context.Context, q core.ListQuery) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return core.Page{}, err
	}
	q = q.Normalize()

	s.mu.RLock()
	sorted := make([]core.Record, len(s.records))
	copy(sorted, s.records)
	s.mu.RUnlock()

	// Collators keep internal buffers, so each call gets its own.
	col := collate.New(language.AmericanEnglish, collate.IgnoreCase)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := col.CompareString(sorted[i].Name, sorted[j].Name)
		if q.Sort == core.SortDesc {
			return c > 0
		}
		return c < 0
	})

	page := core.Page{
		Records: []core.Record{},
		Total:   int64(len(sorted)),
		Page:    q.Page,
		PerPage: q.PerPage,
		Sort:    q.Sort,
	}
	if skip := q.Skip(); skip >= 0 && skip < len(sorted) {
		end := min(skip+q.PerPage, len(sorted))
		page.Records = sorted[skip:end]
	}
	return page, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Record, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", core.ErrInvalidID, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	return s.records[i], nil
}

func (s *Store) UpdateByID(ctx context.Context, id, name string, mobile int64) (core.Record, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", core.ErrInvalidID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	s.records[i].Name = name
	s.records[i].Mobile = mobile
	return s.records[i], nil
}

func (s *Store) UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (core.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UpdateResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res core.UpdateResult
	for i := range s.records {
		if s.records[i].Name != name || s.records[i].Mobile != mobile {
			continue
		}
		res.Matched++
		if s.records[i].Categories != category {
			s.records[i].Categories = category
			res.Modified++
		}
	}
	return res, nil
}

func (s *Store) Search(ctx context.Context, q string, limit int) ([]core.Record, error) {
	needle := strings.ToLower(q)
	mobile, mobileErr := strconv.ParseInt(q, 10, 64)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Record{}
	for _, r := range s.records {
		if limit > 0 && len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Categories), needle) ||
			(mobileErr == nil && r.Mobile == mobile) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Each(ctx context.Context, fn func(core.Record) error) error {
	s.mu.RLock()
	snapshot := make([]core.Record, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	for _, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
