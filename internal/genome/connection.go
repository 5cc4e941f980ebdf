package genome

// Connection flag bits, mirrored into the slab flag channel.
const (
	FlagEnabled  uint8 = 1 << 0
	FlagDropMask uint8 = 1 << 1
	FlagGater    uint8 = 1 << 2
	FlagPlastic  uint8 = 1 << 3
)

// Connection is a directed edge owned by exactly one genome. Gain is neutral
// at 1; Plasticity 0 means a static weight.
type Connection struct {
	From *Node
	To   *Node

	Weight     float64
	Gain       float64
	Gater      *Node
	Enabled    bool
	Plasticity float64
	DropMask   bool
}

func newConnection(from, to *Node, weight float64) *Connection {
	return &Connection{
		From:    from,
		To:      to,
		Weight:  weight,
		Gain:    1,
		Enabled: true,
	}
}

// Flags summarizes the boolean state of the connection as one byte.
func (c *Connection) Flags() uint8 {
	var f uint8
	if c.Enabled {
		f |= FlagEnabled
	}
	if c.DropMask {
		f |= FlagDropMask
	}
	if c.Gater != nil {
		f |= FlagGater
	}
	if c.Plasticity != 0 {
		f |= FlagPlastic
	}
	return f
}

// IsSelf reports whether the connection is a self loop.
func (c *Connection) IsSelf() bool {
	return c.From == c.To
}

// InnovationKey derives a deterministic gene key from endpoint indices via
// Cantor pairing. Crossover aligns connection genes on this key instead of a
// globally incremented counter.
func InnovationKey(from, to int) int64 {
	s := int64(from) + int64(to)
	return s*(s+1)/2 + int64(to)
}
