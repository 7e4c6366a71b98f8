package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOwnershipGroupValidation(t *testing.T) {
	cases := []struct {
		name     string
		partners []Partner
	}{
		{"empty", nil},
		{"non-positive id", []Partner{{UserID: 0, DrawCategory: "vale_a", Weight: 1}}},
		{"zero weight", []Partner{{UserID: 1, DrawCategory: "vale_a"}}},
		{"blank draw", []Partner{{UserID: 1, DrawCategory: "  ", Weight: 1}}},
		{"duplicate id", []Partner{{UserID: 1, DrawCategory: "vale_a", Weight: 1}, {UserID: 1, DrawCategory: "vale_b", Weight: 1}}},
		{"duplicate draw", []Partner{{UserID: 1, DrawCategory: "vale_a", Weight: 1}, {UserID: 2, DrawCategory: "vale_a", Weight: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOwnershipGroup(tc.partners...)
			require.Error(t, err)
		})
	}
}

func TestDefaultOwnershipGroup(t *testing.T) {
	g := DefaultOwnershipGroup()
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []int64{1, 2}, g.IDs())
	assert.True(t, g.Contains(2))
	assert.False(t, g.Contains(3))
	assert.Equal(t, []string{"vale_gustavo", "vale_giovanni"}, g.DrawCategories())

	p, ok := g.PartnerForDraw("vale_giovanni")
	require.True(t, ok)
	assert.Equal(t, int64(2), p.UserID)
	assert.False(t, g.IsDrawCategory("combustivel"))
}

func TestOwnershipPartnersReturnsCopy(t *testing.T) {
	g := DefaultOwnershipGroup()
	partners := g.Partners()
	partners[0].UserID = 99
	assert.True(t, g.Contains(1))
}
