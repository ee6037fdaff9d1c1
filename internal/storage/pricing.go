package storage

import (
	"context"
	"database/sql"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgPricingStore struct {
	db *sql.DB
}

func (s *pgPricingStore) Get(ctx context.Context, model string) (*models.ModelPricing, error) {
	var p models.ModelPricing
	err := s.db.QueryRowContext(ctx,
		`SELECT model, provider, input_cost_per_m, output_cost_per_m
		 FROM model_pricing WHERE model = $1`, model).
		Scan(&p.Model, &p.Provider, &p.InputCostPerM, &p.OutputCostPerM)
	if err == sql.ErrNoRows {
		return nil, kiloerr.Newf(kiloerr.CodeDatabase, "no pricing for model %s", model)
	}
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "load pricing")
	}
	return &p, nil
}

func (s *pgPricingStore) List(ctx context.Context) ([]*models.ModelPricing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, provider, input_cost_per_m, output_cost_per_m
		 FROM model_pricing ORDER BY provider, model`)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list pricing")
	}
	defer rows.Close()

	var sheet []*models.ModelPricing
	for rows.Next() {
		var p models.ModelPricing
		if err := rows.Scan(&p.Model, &p.Provider, &p.InputCostPerM, &p.OutputCostPerM); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan pricing")
		}
		sheet = append(sheet, &p)
	}
	return sheet, rows.Err()
}
