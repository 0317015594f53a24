package store

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the single registry table.
	// Default: "giftlist"
	Table string
}

// DefaultConfig returns the default table configuration.
func DefaultConfig() Config {
	return Config{
		Table: "giftlist",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "giftlist"
	}
}
