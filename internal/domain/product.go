package domain

import "github.com/shopspring/decimal"

// ProductSnapshot is the catalog's view of a product. The catalog owns it;
// this service never mutates it outside of DecrementStock.
type ProductSnapshot struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Images []string        `json:"images"`
}
