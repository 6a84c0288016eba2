package vm

import "fmt"

// Config is the per-instance configuration of a Runtime. Two runtimes in the
// same process may carry different configurations.
type Config struct {
	// IntBits is the storage width of Int values: 32 or 64. Values written to
	// a 32-bit runtime wrap to int32.
	IntBits int
	// FloatBits is the storage width of Float values: 32 or 64.
	FloatBits int
	// GCThreshold is the number of bytes that may be allocated between
	// collections before the next allocation triggers one.
	GCThreshold int
	// MaxCallDepth bounds nested calls, native frames included.
	MaxCallDepth int
	// ParamRegisters is the size of the PARAM range of the calling convention.
	ParamRegisters int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		IntBits:        64,
		FloatBits:      64,
		GCThreshold:    1 << 20,
		MaxCallDepth:   1024,
		ParamRegisters: 16,
	}
}

// validate fills zero fields from DefaultConfig and rejects bad values.
func (c Config) validate() (Config, error) {
	def := DefaultConfig()
	if c.IntBits == 0 {
		c.IntBits = def.IntBits
	}
	if c.FloatBits == 0 {
		c.FloatBits = def.FloatBits
	}
	if c.GCThreshold == 0 {
		c.GCThreshold = def.GCThreshold
	}
	if c.MaxCallDepth == 0 {
		c.MaxCallDepth = def.MaxCallDepth
	}
	if c.ParamRegisters == 0 {
		c.ParamRegisters = def.ParamRegisters
	}
	if c.IntBits != 32 && c.IntBits != 64 {
		return c, fmt.Errorf("int width must be 32 or 64, got %d", c.IntBits)
	}
	if c.FloatBits != 32 && c.FloatBits != 64 {
		return c, fmt.Errorf("float width must be 32 or 64, got %d", c.FloatBits)
	}
	if c.GCThreshold < 0 || c.MaxCallDepth < 0 || c.ParamRegisters < 0 {
		return c, fmt.Errorf("negative runtime limit in %+v", c)
	}
	return c, nil
}

// normInt applies the configured integer width.
func (c *Config) normInt(i int64) int64 {
	if c.IntBits == 32 {
		return int64(int32(i))
	}
	return i
}

// normFloat applies the configured float width.
func (c *Config) normFloat(f float64) float64 {
	if c.FloatBits == 32 {
		return float64(float32(f))
	}
	return f
}
