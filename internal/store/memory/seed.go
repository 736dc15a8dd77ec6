package memory

import "github.com/nazeru/quickmart-checkout-go/internal/store"

// SeedDemoCatalog loads the demo catalog for local runs without Postgres.
func (s *Store) SeedDemoCatalog() {
	for _, p := range store.DemoCatalog() {
		s.PutProduct(p)
	}
}
