// Package commerce is the boundary adapter to the Elastic Path backend:
// catalog, carts, customers, addresses, and the pizzeria directory.
package commerce

import "github.com/avolkov-go/pizzeria-bot/internal/geo"

// Product is a catalog item.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       Amount
	ImageFileID string
}

// CartLine is one position of a customer cart.
type CartLine struct {
	ID          string
	ProductID   string
	Name        string
	Description string
	Quantity    int
	UnitPrice   Amount
	LineTotal   Amount
}

// Amount is a price as the backend formats it plus the raw value in kopecks.
type Amount struct {
	Kopecks   int64
	Formatted string
}

// Pizzeria is a fulfillment facility from the pizzeria flow.
type Pizzeria struct {
	ID        string
	Alias     string
	Address   string
	Coord     geo.Coordinate
	CourierID int64
}

// Place converts the pizzeria into the locator's input shape.
func (p Pizzeria) Place() geo.Place {
	return geo.Place{ID: p.ID, Address: p.Address, Coord: p.Coord}
}
