package pool

import (
	"strings"
	"time"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
)

// ExhaustionPolicy decides what Borrow does when the pool is at MaxActive and
// no idle handle is available.
type ExhaustionPolicy int

const (
	// Block waits for a handle to be returned, up to Config.MaxWait.
	Block ExhaustionPolicy = iota
	// Fail returns an ErrorTypeExhausted error immediately.
	Fail
	// Grow creates a handle beyond MaxActive.
	Grow
)

// String returns the lower-case policy name.
func (p ExhaustionPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case Fail:
		return "fail"
	case Grow:
		return "grow"
	default:
		return "unknown"
	}
}

// ParseExhaustionPolicy parses "block", "fail" or "grow", ignoring case. An
// empty string yields Block.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "fail":
		return Fail, nil
	case "grow":
		return Grow, nil
	default:
		return Block, poolerrors.New(poolerrors.ErrorTypeConfig, "unknown exhaustion policy").
			WithDetail("value", s)
	}
}

// Config bounds a Pool. It is fixed once the pool is built.
type Config struct {
	// MinIdle is the number of idle handles the reaper keeps around
	MinIdle int
	// MaxIdle caps idle handles; surplus returns are destroyed. 0 is unbounded
	MaxIdle int
	// MaxActive caps borrowed plus idle handles. 0 is unbounded
	MaxActive int
	// MinEvictableIdleTime is how long a handle idles before the reaper may
	// destroy it. 0 disables idle-time eviction
	MinEvictableIdleTime time.Duration
	// EvictionRunInterval is the reaper period. 0 disables the reaper
	EvictionRunInterval time.Duration
	// Policy applies when the pool is exhausted
	Policy ExhaustionPolicy
	// MaxWait bounds a Block borrow. 0 waits until a handle frees up, the
	// borrow's context ends or the pool closes
	MaxWait time.Duration
}

// DefaultConfig mirrors the defaults of the classic generic object pool.
func DefaultConfig() Config {
	return Config{
		MinIdle:              0,
		MaxIdle:              8,
		MaxActive:            8,
		MinEvictableIdleTime: 30 * time.Minute,
		EvictionRunInterval:  0,
		Policy:               Block,
		MaxWait:              0,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.MinIdle < 0:
		return invalidConfig("min idle cannot be negative", c.MinIdle)
	case c.MaxIdle < 0:
		return invalidConfig("max idle cannot be negative", c.MaxIdle)
	case c.MaxActive < 0:
		return invalidConfig("max active cannot be negative", c.MaxActive)
	case c.MinEvictableIdleTime < 0:
		return invalidConfig("min evictable idle time cannot be negative", c.MinEvictableIdleTime)
	case c.EvictionRunInterval < 0:
		return invalidConfig("eviction run interval cannot be negative", c.EvictionRunInterval)
	case c.MaxWait < 0:
		return invalidConfig("max wait cannot be negative", c.MaxWait)
	case c.MaxIdle > 0 && c.MinIdle > c.MaxIdle:
		return invalidConfig("min idle cannot exceed max idle", c.MinIdle)
	case c.MaxActive > 0 && c.MinIdle > c.MaxActive:
		return invalidConfig("min idle cannot exceed max active", c.MinIdle)
	case c.Policy < Block || c.Policy > Grow:
		return invalidConfig("unknown exhaustion policy", int(c.Policy))
	}
	return nil
}

func invalidConfig(message string, value interface{}) error {
	return poolerrors.New(poolerrors.ErrorTypeConfig, message).WithDetail("value", value)
}
