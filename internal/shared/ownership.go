package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Partner is a co-owner of the firm. Draws booked under DrawCategory are
// charged against the partner's profit share.
type Partner struct {
	UserID       int64
	DrawCategory string
	Weight       float64
}

// OwnershipGroup is the fixed set of partners that share every ledger.
type OwnershipGroup struct {
	partners []Partner
}

// NewOwnershipGroup validates and returns a group.
func NewOwnershipGroup(partners ...Partner) (OwnershipGroup, error) {
	if len(partners) == 0 {
		return OwnershipGroup{}, errors.New("ownership group requires at least one partner")
	}
	seenIDs := make(map[int64]struct{}, len(partners))
	seenDraws := make(map[string]struct{}, len(partners))
	out := make([]Partner, 0, len(partners))
	for _, p := range partners {
		if p.UserID <= 0 {
			return OwnershipGroup{}, fmt.Errorf("partner id must be positive, got %d", p.UserID)
		}
		if p.Weight <= 0 {
			return OwnershipGroup{}, fmt.Errorf("partner %d: weight must be positive", p.UserID)
		}
		p.DrawCategory = strings.TrimSpace(p.DrawCategory)
		if p.DrawCategory == "" {
			return OwnershipGroup{}, fmt.Errorf("partner %d: draw category required", p.UserID)
		}
		if _, dup := seenIDs[p.UserID]; dup {
			return OwnershipGroup{}, fmt.Errorf("partner %d configured twice", p.UserID)
		}
		if _, dup := seenDraws[p.DrawCategory]; dup {
			return OwnershipGroup{}, fmt.Errorf("draw category %q configured twice", p.DrawCategory)
		}
		seenIDs[p.UserID] = struct{}{}
		seenDraws[p.DrawCategory] = struct{}{}
		out = append(out, p)
	}
	return OwnershipGroup{partners: out}, nil
}

// DefaultOwnershipGroup returns the two equal partners the firm was founded with.
func DefaultOwnershipGroup() OwnershipGroup {
	g, _ := NewOwnershipGroup(
		Partner{UserID: 1, DrawCategory: "vale_gustavo", Weight: 1},
		Partner{UserID: 2, DrawCategory: "vale_giovanni", Weight: 1},
	)
	return g
}

// Partners returns a copy of the configured partners in declaration order.
func (g OwnershipGroup) Partners() []Partner {
	out := make([]Partner, len(g.partners))
	copy(out, g.partners)
	return out
}

// IDs lists the partner user ids, used to broaden ownership filters.
func (g OwnershipGroup) IDs() []int64 {
	ids := make([]int64, 0, len(g.partners))
	for _, p := range g.partners {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Contains reports whether the user id belongs to a partner.
func (g OwnershipGroup) Contains(userID int64) bool {
	for _, p := range g.partners {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsDrawCategory reports whether an expense category is a partner draw.
func (g OwnershipGroup) IsDrawCategory(category string) bool {
	_, ok := g.PartnerForDraw(category)
	return ok
}

// PartnerForDraw resolves the partner charged by a draw category.
func (g OwnershipGroup) PartnerForDraw(category string) (Partner, bool) {
	for _, p := range g.partners {
		if p.DrawCategory == category {
			return p, true
		}
	}
	return Partner{}, false
}

// DrawCategories lists every partner draw category.
func (g OwnershipGroup) DrawCategories() []string {
	out := make([]string, 0, len(g.partners))
	for _, p := range g.partners {
		out = append(out, p.DrawCategory)
	}
	return out
}

// Len returns the number of partners.
func (g OwnershipGroup) Len() int {
	return len(g.partners)
}
