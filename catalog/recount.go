package catalog

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/booya/coin-engine/ledger"
)

// Drift is one counter that disagreed with its base table.
type Drift struct {
	Entity   string // "category" or "product"
	ID       string
	Stored   int
	Recorded int
}

// RecountReport summarizes one audit pass.
type RecountReport struct {
	CategoriesChecked int
	ProductsChecked   int
	Repaired          []Drift
}

// Recount recomputes every category's item count from the products
// table and every product's sales count from the purchases table, and
// overwrites any counter that drifted. The whole pass runs in one unit
// so a concurrent structural change cannot be half-counted.
//
// The hot paths never do this; Recount exists so the denormalized
// counters stay reconcilable for audit and repair.
func (s *Service) Recount(ctx context.Context) (*RecountReport, error) {
	report := &RecountReport{}
	err := s.store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		categories, err := u.Categories(ctx)
		if err != nil {
			return err
		}
		for _, c := range categories {
			report.CategoriesChecked++
			n, err := u.CountProducts(ctx, c.ID)
			if err != nil {
				return err
			}
			if n == c.ItemCount {
				continue
			}
			if err := u.SetItemCount(ctx, c.ID, n); err != nil {
				return err
			}
			report.Repaired = append(report.Repaired, Drift{
				Entity: "category", ID: string(c.ID), Stored: c.ItemCount, Recorded: n,
			})
		}

		products, err := u.Products(ctx, ledger.ProductFilter{})
		if err != nil {
			return err
		}
		for _, p := range products {
			report.ProductsChecked++
			n, err := u.CountPurchases(ctx, p.ID)
			if err != nil {
				return err
			}
			if n == p.Sales {
				continue
			}
			if err := u.SetSales(ctx, p.ID, n); err != nil {
				return err
			}
			report.Repaired = append(report.Repaired, Drift{
				Entity: "product", ID: string(p.ID), Stored: p.Sales, Recorded: n,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Repaired) > 0 {
		s.log.WithFields(log.Fields{
			"categories": report.CategoriesChecked,
			"products":   report.ProductsChecked,
			"repaired":   len(report.Repaired),
		}).Warn("counter recount repaired drift")
	}
	return report, nil
}
