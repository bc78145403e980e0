// Package retry wraps risk-reducing broker calls with bounded retries.
// Only operations that shrink exposure (flattening, cancelling) go through
// here; entries are never retried.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is the default retry configuration.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries transient broker failures with exponential backoff.
type Client struct {
	broker broker.Broker
	logger *log.Logger
	config Config
}

// NewClient creates a retry client. Config is optional.
func NewClient(b broker.Broker, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// FlattenPositionWithRetry submits the offsetting market order that
// neutralizes a broker position: sell when long, buy when short, quantity
// the absolute position size. Transient failures are retried with backoff;
// permanent rejections return immediately.
func (c *Client) FlattenPositionWithRetry(ctx context.Context, position models.Position) (broker.OrderHandle, error) {
	flattenCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	side := models.SideSell
	qty := position.Quantity
	if qty < 0 {
		side = models.SideBuy
		qty = -qty
	}
	intent := models.OrderIntent{Side: side, Quantity: qty}

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-flattenCtx.Done():
			return "", fmt.Errorf("flatten timed out after %v: %w", c.config.Timeout, flattenCtx.Err())
		default:
		}

		c.logger.Printf("Flatten attempt %d/%d for %s (qty %d)",
			attempt+1, c.config.MaxRetries+1, position.Contract, position.Quantity)

		handle, err := c.broker.SubmitOrder(flattenCtx, position.Contract, intent)
		if err == nil {
			c.logger.Printf("Flatten order placed on attempt %d: %s", attempt+1, handle)
			return handle, nil
		}

		lastErr = err
		c.logger.Printf("Flatten attempt %d failed: %v", attempt+1, err)

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("Transient error detected, retrying in %v", backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-flattenCtx.Done():
				return "", fmt.Errorf("flatten timed out during backoff: %w", flattenCtx.Err())
			}
		} else {
			break
		}
	}

	return "", fmt.Errorf("failed to flatten %s after %d attempts: %w",
		position.Contract, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if broker.IsPermanentAPIError(err) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
