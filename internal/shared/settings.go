package shared

// Settings is the store-wide configuration record. It is loaded once at
// process start and passed explicitly to the components that need tax
// defaults or currency formatting; nothing fetches it ad hoc.
type Settings struct {
	StoreName         string
	CurrencyCode      string
	CurrencySymbol    string
	DefaultTaxRate    float64
	LowStockThreshold int
}

// DefaultSettings returns the fallback configuration used when the
// environment provides nothing.
func DefaultSettings() Settings {
	return Settings{
		StoreName:         "Meridian POS",
		CurrencyCode:      "GHS",
		CurrencySymbol:    "GH₵",
		DefaultTaxRate:    0.15,
		LowStockThreshold: 10,
	}
}
