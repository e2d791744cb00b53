package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is a product category tag. The remote API returns either bare
// strings or objects; both decode into Category.
type Category struct {
	Slug string `json:"slug,omitempty"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// NewCategory returns a category whose value is v.
func NewCategory(v string) Category {
	return Category{Slug: v}
}

// Value is the filter value. Precedence is slug, then name, then id.
func (c Category) Value() string {
	switch {
	case c.Slug != "":
		return c.Slug
	case c.Name != "":
		return c.Name
	default:
		return c.ID
	}
}

// Label is Value with dashes replaced by spaces, for display.
func (c Category) Label() string {
	return strings.ReplaceAll(c.Value(), "-", " ")
}

func (c *Category) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = Category{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Category{Slug: s}
		return nil
	}

	var obj struct {
		Slug string          `json:"slug"`
		Name string          `json:"name"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	*c = Category{Slug: obj.Slug, Name: obj.Name, ID: rawScalar(obj.ID)}
	return nil
}

// rawScalar renders a JSON string or number as plain text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// CategoriesFromProducts returns the distinct categories of products in
// first-seen order.
func CategoriesFromProducts(products []Product) []Category {
	seen := make(map[string]struct{}, len(products))
	out := make([]Category, 0)
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, NewCategory(p.Category))
	}
	return out
}
