package sale

// Pricing defaults. One token costs PriceLamports of native currency and
// occupies BaseUnitsPerToken base units on the token ledger (nine decimals).
const (
	DefaultPriceLamports     uint64 = 1_000_000
	DefaultBaseUnitsPerToken uint64 = 1_000_000_000
)

// Config sets the fixed pricing terms the program applies to every sale.
type Config struct {
	// PriceLamports is the cost of one whole token.
	PriceLamports uint64

	// BaseUnitsPerToken converts whole tokens to ledger base units.
	BaseUnitsPerToken uint64
}

// DefaultConfig returns the standard pricing terms.
func DefaultConfig() Config {
	return Config{
		PriceLamports:     DefaultPriceLamports,
		BaseUnitsPerToken: DefaultBaseUnitsPerToken,
	}
}

func (c Config) withDefaults() Config {
	if c.PriceLamports == 0 {
		c.PriceLamports = DefaultPriceLamports
	}
	if c.BaseUnitsPerToken == 0 {
		c.BaseUnitsPerToken = DefaultBaseUnitsPerToken
	}
	return c
}
