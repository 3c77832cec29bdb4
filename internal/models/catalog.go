package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Customer is the top of the tenancy hierarchy. Slugs are unique across
// customers.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that required fields are present.
func (c *Customer) Validate() error {
	if c == nil {
		return errors.New("customer is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	if c.Slug == "" {
		return errors.New("slug is required")
	}
	return nil
}

// Brand belongs to exactly one customer. Slugs are unique per customer.
type Brand struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	CreatedAt  time.Time `json:"created_at"`
}

func (b *Brand) Validate() error {
	if b == nil {
		return errors.New("brand is nil")
	}
	if b.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("name is required")
	}
	if b.Slug == "" {
		return errors.New("slug is required")
	}
	return nil
}

// AdType is the creative format of an ad. The set is closed; use
// ParseAdType to convert untrusted input.
type AdType string

const (
	AdTypeStatic    AdType = "static"
	AdTypeVideo     AdType = "video"
	AdTypeGIF       AdType = "gif"
	AdTypeAnimation AdType = "animation"
)

// AdTypes lists every ad type in declaration order.
var AdTypes = []AdType{AdTypeStatic, AdTypeVideo, AdTypeGIF, AdTypeAnimation}

// ParseAdType converts s into an AdType.
func ParseAdType(s string) (AdType, error) {
	t := AdType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown ad type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known ad types.
func (t AdType) Valid() bool {
	switch t {
	case AdTypeStatic, AdTypeVideo, AdTypeGIF, AdTypeAnimation:
		return true
	}
	return false
}

// ClickProbability is the benchmark CTR used when simulating traffic for
// this format.
func (t AdType) ClickProbability() float64 {
	switch t {
	case AdTypeVideo, AdTypeAnimation:
		return 0.08
	case AdTypeStatic:
		return 0.01
	case AdTypeGIF:
		return 0.02
	}
	return 0
}

// Ad is a single campaign creative owned by a brand.
type Ad struct {
	ID         string    `json:"id"`
	BrandID    string    `json:"brand_id"`
	Name       string    `json:"name"`
	Type       AdType    `json:"type"`
	Dimensions string    `json:"dimensions"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Ad) Validate() error {
	if a == nil {
		return errors.New("ad is nil")
	}
	if a.BrandID == "" {
		return errors.New("brand_id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("invalid ad type %q", a.Type)
	}
	return nil
}

// NormalizeSlug lowercases s and replaces every run of whitespace with a
// single hyphen.
func NormalizeSlug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
