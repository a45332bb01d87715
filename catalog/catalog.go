/*
Package catalog manages shop categories, products, and tasks.

The denormalized counters live here: Category.ItemCount moves in the
same unit of work as the product create/move/delete that changes it,
and never by a background job. Product.Sales is owned by the ledger
engine's Purchase path; this package only repairs it during Recount.

SEE ALSO:
  - recount.go: the audit recount/repair pass
  - ledger/engine.go: the only writer of the sales counter
*/
package catalog

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/booya/coin-engine/ledger"
)

// Service exposes the admin-facing catalog operations.
type Service struct {
	store ledger.Store
	log   *log.Logger
	now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, log: log.StandardLogger(), now: time.Now}
}

// WithLogger replaces the service's logger.
func (s *Service) WithLogger(l *log.Logger) *Service {
	s.log = l
	return s
}

// WithClock replaces the service's clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *Service) CreateCategory(ctx context.Context, name string) (*ledger.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	c := ledger.Category{ID: ledger.NewCategoryID(), Name: name}
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.CreateCategory(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("category", c.ID).Info("category created")
	return &c, nil
}

// CategoryUpdate carries the optional fields of an update; nil leaves a
// field unchanged.
type CategoryUpdate struct {
	Name   *string
	Paused *bool
}

func (s *Service) UpdateCategory(ctx context.Context, id ledger.CategoryID, upd CategoryUpdate) (*ledger.Category, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	var out ledger.Category
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		c, err := u.Category(ctx, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			c.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Paused != nil {
			c.Paused = *upd.Paused
		}
		if err := u.UpdateCategory(ctx, *c); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCategory removes an empty category. A category whose ItemCount
// is still positive is rejected with ErrCategoryNotEmpty; the category
// and its products remain untouched.
func (s *Service) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	return s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		c, err := u.Category(ctx, id)
		if err != nil {
			return err
		}
		if c.ItemCount > 0 {
			return ledger.ErrCategoryNotEmpty
		}
		return u.DeleteCategory(ctx, id)
	})
}

func (s *Service) Categories(ctx context.Context) ([]ledger.Category, error) {
	return s.store.Categories(ctx)
}

// =============================================================================
// PRODUCTS
// =============================================================================

// NewProduct carries the fields of a product create.
type NewProduct struct {
	Name         string
	Description  string
	Price        ledger.Amount
	CategoryID   ledger.CategoryID
	ThumbnailURL string
	FileURL      string
}

func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (*ledger.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if !in.Price.IsPositive() {
		return nil, &ledger.ValidationError{Field: "price", Message: "must be positive"}
	}

	now := s.now()
	p := ledger.Product{
		ID:           ledger.NewProductID(),
		Name:         in.Name,
		Description:  in.Description,
		Price:        in.Price,
		CategoryID:   in.CategoryID,
		ThumbnailURL: in.ThumbnailURL,
		FileURL:      in.FileURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if _, err := u.Category(ctx, in.CategoryID); err != nil {
			return err
		}
		if err := u.CreateProduct(ctx, p); err != nil {
			return err
		}
		// Count moves with the structural change, in the same unit.
		return u.AdjustItemCount(ctx, in.CategoryID, +1)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(log.Fields{
		"product":  p.ID,
		"category": p.CategoryID,
	}).Info("product created")
	return &p, nil
}

// ProductUpdate carries the optional fields of an update; nil leaves a
// field unchanged. A CategoryID change moves the product and adjusts
// both categories' counts in the same unit.
type ProductUpdate struct {
	Name         *string
	Description  *string
	Price        *ledger.Amount
	CategoryID   *ledger.CategoryID
	ThumbnailURL *string
	FileURL      *string
	Paused       *bool
}

func (s *Service) UpdateProduct(ctx context.Context, id ledger.ProductID, upd ProductUpdate) (*ledger.Product, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if upd.Price != nil && !upd.Price.IsPositive() {
		return nil, &ledger.ValidationError{Field: "price", Message: "must be positive"}
	}

	var out ledger.Product
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		p, err := u.ProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldCategory := p.CategoryID

		if upd.Name != nil {
			p.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Description != nil {
			p.Description = *upd.Description
		}
		if upd.Price != nil {
			p.Price = *upd.Price
		}
		if upd.ThumbnailURL != nil {
			p.ThumbnailURL = *upd.ThumbnailURL
		}
		if upd.FileURL != nil {
			p.FileURL = *upd.FileURL
		}
		if upd.Paused != nil {
			p.Paused = *upd.Paused
		}
		if upd.CategoryID != nil && *upd.CategoryID != oldCategory {
			if _, err := u.Category(ctx, *upd.CategoryID); err != nil {
				return err
			}
			p.CategoryID = *upd.CategoryID
			if err := u.AdjustItemCount(ctx, oldCategory, -1); err != nil {
				return err
			}
			if err := u.AdjustItemCount(ctx, *upd.CategoryID, +1); err != nil {
				return err
			}
		}
		p.UpdatedAt = s.now()

		if err := u.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id ledger.ProductID) error {
	return s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		p, err := u.ProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := u.DeleteProduct(ctx, id); err != nil {
			return err
		}
		return u.AdjustItemCount(ctx, p.CategoryID, -1)
	})
}

func (s *Service) Product(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return s.store.Product(ctx, id)
}

// ListVisible returns the products a shopper can see: not paused, in a
// category that is not paused, optionally narrowed to one category.
func (s *Service) ListVisible(ctx context.Context, categoryID ledger.CategoryID) ([]ledger.Product, error) {
	return s.store.Products(ctx, ledger.ProductFilter{
		CategoryID:  categoryID,
		VisibleOnly: true,
	})
}

// =============================================================================
// TASKS
// =============================================================================

// NewTask carries the fields of a task create.
type NewTask struct {
	Title       string
	Description string
	RewardCoins ledger.Amount
}

func (s *Service) CreateTask(ctx context.Context, in NewTask) (*ledger.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, &ledger.ValidationError{Field: "title", Message: "required"}
	}
	if !in.RewardCoins.IsPositive() {
		return nil, &ledger.ValidationError{Field: "reward_coins", Message: "must be positive"}
	}
	t := ledger.Task{
		ID:          ledger.NewTaskID(),
		Title:       in.Title,
		Description: in.Description,
		RewardCoins: in.RewardCoins,
		Active:      true,
	}
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.CreateTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) SetTaskActive(ctx context.Context, id ledger.TaskID, active bool) error {
	return s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		t, err := u.Task(ctx, id)
		if err != nil {
			return err
		}
		t.Active = active
		return u.UpdateTask(ctx, *t)
	})
}

func (s *Service) ListActiveTasks(ctx context.Context) ([]ledger.Task, error) {
	return s.store.Tasks(ctx, true)
}
