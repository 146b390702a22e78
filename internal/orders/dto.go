package orders

import "github.com/angelmondragon/storefront-backend/pkg/db/models"

// OrderList is one page of a customer's orders, newest first.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}
