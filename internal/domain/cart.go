package domain

import (
	"math"
	"time"
)

// Cart is the per-user aggregate. Items are unique by ProductID.
type Cart struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// NewCart returns an unsaved, empty cart for userID.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IndexOf returns the position of the line for productID, or -1.
func (c *Cart) IndexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AddItem merges quantity into an existing line or appends a new one.
// The merged total is not checked against stock here, only against int range.
func (c *Cart) AddItem(productID string, quantity int, now time.Time) error {
	if i := c.IndexOf(productID); i >= 0 {
		if quantity > math.MaxInt-c.Items[i].Quantity {
			return &ValidationError{Field: "quantity", Reason: "merged quantity is out of range"}
		}
		c.Items[i].Quantity += quantity
	} else {
		c.Items = append(c.Items, CartItem{
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   now,
		})
	}
	c.UpdatedAt = now
	return nil
}

// SetQuantity overwrites the quantity of an existing line. A quantity of
// zero or less removes the line.
func (c *Cart) SetQuantity(productID string, quantity int, now time.Time) error {
	i := c.IndexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.removeAt(i)
	} else {
		c.Items[i].Quantity = quantity
	}
	c.UpdatedAt = now
	return nil
}

// RemoveItem deletes the line for productID. The cart itself is kept even
// when it becomes empty.
func (c *Cart) RemoveItem(productID string, now time.Time) error {
	i := c.IndexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.removeAt(i)
	c.UpdatedAt = now
	return nil
}

func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// Clone returns a deep copy safe to mutate independently.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// CartView is the read projection of a cart with catalog data joined in.
type CartView struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartLine is a cart item plus the product snapshot at read time. Product is
// nil and Unavailable is set when the product no longer resolves.
type CartLine struct {
	ProductID   string           `json:"product_id"`
	Quantity    int              `json:"quantity"`
	AddedAt     time.Time        `json:"added_at"`
	Product     *ProductSnapshot `json:"product,omitempty"`
	Unavailable bool             `json:"unavailable,omitempty"`
}
