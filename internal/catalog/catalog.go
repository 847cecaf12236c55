// Package catalog compiles reward catalog definitions written in CUE
// into seedable Go structures.
//
// A catalog file declares one loyalty program and its redeemable
// rewards. CUE's constraint syntax carries the business rules
// (points_cost must be positive, stock must be non-negative) so invalid
// catalogs fail at validation time with source positions, before
// anything touches the store.
package catalog

import "github.com/eduardojeem/Mipos-sub025/internal/store"

// Program is a loyalty program declared by a catalog file.
type Program struct {
	ID   string
	Name string
}

// Catalog is the compiled form of a catalog file.
type Catalog struct {
	Program Program
	Rewards []store.Reward
}
