package domain

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

func init() {
	// prices and totals travel as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

type Article struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"addedAt"`
}

func (a Article) Validate() error {
	if a.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// LineTotal is price × quantity.
func (a Article) LineTotal() decimal.Decimal {
	return a.Price.Mul(decimal.NewFromInt(int64(a.Quantity)))
}

type Cart struct {
	UserID       string    `json:"userId"`
	Articles     []Article `json:"articles"`
	LastModified time.Time `json:"lastModified"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:       userID,
		Articles:     []Article{},
		LastModified: now,
	}
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range c.Articles {
		total = total.Add(a.LineTotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, a := range c.Articles {
		n += a.Quantity
	}
	return n
}

// FindByName matches names exactly (case and whitespace significant).
func (c *Cart) FindByName(name string) *Article {
	for i := range c.Articles {
		if c.Articles[i].Name == name {
			return &c.Articles[i]
		}
	}
	return nil
}

// Merge adds a's quantity to the article with the same name, or appends a.
// It reports whether a new entry was appended. A merged quantity that would
// overflow int is rejected with ErrInvalidQuantity and leaves the cart unchanged.
func (c *Cart) Merge(a Article) (bool, error) {
	if existing := c.FindByName(a.Name); existing != nil {
		if existing.Quantity > math.MaxInt-a.Quantity {
			return false, ErrInvalidQuantity
		}
		existing.Quantity += a.Quantity
		return false, nil
	}
	c.Articles = append(c.Articles, a)
	return true, nil
}

// RemoveByID drops every article with the given id and returns how many were removed.
func (c *Cart) RemoveByID(id string) int {
	kept := c.Articles[:0]
	removed := 0
	for _, a := range c.Articles {
		if a.ID == id {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	c.Articles = kept
	return removed
}

type cartJSON struct {
	UserID       string          `json:"userId"`
	Articles     []Article       `json:"articles"`
	LastModified time.Time       `json:"lastModified"`
	Total        decimal.Decimal `json:"total"`
	ItemCount    int             `json:"itemCount"`
}

// MarshalJSON includes the derived total and itemCount.
func (c Cart) MarshalJSON() ([]byte, error) {
	articles := c.Articles
	if articles == nil {
		articles = []Article{}
	}
	return json.Marshal(cartJSON{
		UserID:       c.UserID,
		Articles:     articles,
		LastModified: c.LastModified,
		Total:        c.Total(),
		ItemCount:    c.ItemCount(),
	})
}

// UnmarshalJSON ignores total and itemCount; they are always recomputed.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID       string    `json:"userId"`
		Articles     []Article `json:"articles"`
		LastModified time.Time `json:"lastModified"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.UserID = raw.UserID
	c.Articles = raw.Articles
	if c.Articles == nil {
		c.Articles = []Article{}
	}
	c.LastModified = raw.LastModified
	return nil
}
