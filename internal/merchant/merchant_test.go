package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Detect(t *testing.T) {
	reg := Registry{
		StockX,
		{Name: "Example", SenderDomains: []string{"merchant.example"}},
	}

	tests := []struct {
		name    string
		sender  string
		subject string
		want    string
		ok      bool
	}{
		{"display name", "StockX <noreply@stockx.com>", "Order Confirmed", "StockX", true},
		{"subdomain", "orders@email.stockx.com", "", "StockX", true},
		{"bare address", "noreply@merchant.example", "", "Example", true},
		{"subject token", "friend@gmail.com", "Fwd: StockX order", "StockX", true},
		{"lookalike domain", "x@notstockx.com", "Hello", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := reg.Detect(tt.sender, tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, m.Name)
		})
	}
}

func TestMerchant_FromQuery(t *testing.T) {
	assert.Equal(t, "from:stockx.com", StockX.FromQuery())
	m := Merchant{SenderDomains: []string{"a.com", "b.com"}}
	assert.Equal(t, "{from:a.com from:b.com}", m.FromQuery())
	assert.Empty(t, Merchant{}.FromQuery())
}

func TestMerchant_IsCDN(t *testing.T) {
	assert.True(t, StockX.IsCDN("Images.StockX.com"))
	assert.False(t, StockX.IsCDN("cdn.example.com"))
}

func TestRegistry_ByName(t *testing.T) {
	reg := Registry{StockX, {Name: "GOAT", SenderDomains: []string{"goat.com"}}}
	m, ok := reg.ByName("goat")
	assert.True(t, ok)
	assert.Equal(t, "GOAT", m.Name)

	_, ok = reg.ByName("eBay")
	assert.False(t, ok)
}
