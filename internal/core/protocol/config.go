package protocol

import "time"

// Default tuning values. QueueSize bounds both transport queues so a slow
// consumer applies backpressure instead of growing memory.
const (
	DefaultQueueSize      = 100
	DefaultMaxMessageSize = 16 * 1024 * 1024
	DefaultDialTimeout    = 10 * time.Second
)

// Config holds transport configuration
type Config struct {
	// Network settings
	DialTimeout time.Duration

	// Per-operation I/O deadlines. Zero disables the deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Message settings
	MaxMessageSize uint32

	// Queue settings
	QueueSize int
}

// DefaultConfig returns a Config with the default tuning values.
func DefaultConfig() Config {
	return Config{
		DialTimeout:    DefaultDialTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
		QueueSize:      DefaultQueueSize,
	}
}

// WithDefaults fills zero-valued fields with the default tuning values.
func (c Config) WithDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}
