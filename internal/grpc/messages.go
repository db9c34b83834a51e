package grpc

import (
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

type GetCartRequest struct {
	UserID string `json:"user_id"`
}

// CartItemRequest is shared by AddItem and UpdateItem.
type CartItemRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

type CartResponse struct {
	Cart *Cart `json:"cart"`
}

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// CartItem carries Product only on reads. Unavailable marks a line whose
// product no longer resolves in the catalog.
type CartItem struct {
	ProductID   string   `json:"product_id"`
	Quantity    int      `json:"quantity"`
	AddedAt     string   `json:"added_at"`
	Product     *Product `json:"product,omitempty"`
	Unavailable bool     `json:"unavailable,omitempty"`
}

type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  string   `json:"price"`
	Stock  int      `json:"stock"`
	Images []string `json:"images,omitempty"`
}

type GetBalanceRequest struct {
	UserID string `json:"user_id"`
}

type RedeemRequest struct {
	UserID      string `json:"user_id"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

type EarnRequest struct {
	UserID      string `json:"user_id"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

type AccountResponse struct {
	Account *Account `json:"account"`
}

type Account struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	TotalPoints   int64         `json:"total_points"`
	PointsHistory []Transaction `json:"points_history"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
}

type Transaction struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func convertCart(c *domain.Cart) *Cart {
	cart := &Cart{
		ID:        c.ID,
		UserID:    c.UserID,
		Items:     make([]CartItem, len(c.Items)),
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}

	for i, item := range c.Items {
		cart.Items[i] = CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   formatTime(item.AddedAt),
		}
	}

	return cart
}

func convertCartView(v *domain.CartView) *Cart {
	cart := &Cart{
		ID:        v.ID,
		UserID:    v.UserID,
		Items:     make([]CartItem, len(v.Lines)),
		CreatedAt: formatTime(v.CreatedAt),
		UpdatedAt: formatTime(v.UpdatedAt),
	}

	for i, line := range v.Lines {
		item := CartItem{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			AddedAt:     formatTime(line.AddedAt),
			Unavailable: line.Unavailable,
		}
		if p := line.Product; p != nil {
			item.Product = &Product{
				ID:     p.ID,
				Name:   p.Name,
				Price:  p.Price.String(),
				Stock:  p.Stock,
				Images: p.Images,
			}
		}
		cart.Items[i] = item
	}

	return cart
}

func convertAccount(a *domain.LoyaltyAccount) *Account {
	account := &Account{
		ID:            a.ID,
		UserID:        a.UserID,
		TotalPoints:   a.TotalPoints,
		PointsHistory: make([]Transaction, len(a.PointsHistory)),
		CreatedAt:     formatTime(a.CreatedAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
	}

	for i, tx := range a.PointsHistory {
		account.PointsHistory[i] = Transaction{
			ID:          tx.ID,
			Type:        string(tx.Type),
			Points:      tx.Points,
			Description: tx.Description,
			Reference:   tx.Reference,
			OccurredAt:  formatTime(tx.OccurredAt),
		}
	}

	return account
}
