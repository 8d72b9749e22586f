// Package registrytest provides an in-process registry channel for tests.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/registry"
)

var (
	_ registry.Channel = (*MemoryChannel)(nil)
	_ registry.Binder  = (*MemoryChannel)(nil)
)

// MemoryChannel is an in-process channel. FailFetch and FailPublish make the
// next calls fail with ErrChannelUnavailable until cleared; FailFetch also
// fails Bind.
type MemoryChannel struct {
	mu          sync.Mutex
	document    []byte
	fetches     int
	publishes   int
	failFetch   error
	failPublish error
}

// NewMemoryChannel creates a channel holding document.
func NewMemoryChannel(document []byte) *MemoryChannel {
	return &MemoryChannel{document: document}
}

// Fetch returns a copy of the held document.
func (c *MemoryChannel) Fetch(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches++
	if c.failFetch != nil {
		return nil, unavailable("fetch", c.failFetch)
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("fetch", err)
	}
	if c.document == nil {
		return nil, unavailable("fetch", errors.New("nothing published"))
	}
	return append([]byte(nil), c.document...), nil
}

// Publish stores a copy of document.
func (c *MemoryChannel) Publish(ctx context.Context, document []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.publishes++
	if c.failPublish != nil {
		return unavailable("publish", c.failPublish)
	}
	c.document = append([]byte(nil), document...)
	return nil
}

// Bind records hwid on key inside the held document, acting as the issuing
// side would.
func (c *MemoryChannel) Bind(ctx context.Context, key, hwid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failFetch != nil {
		return unavailable("bind", c.failFetch)
	}

	reg, err := registry.Parse(c.document)
	if err != nil {
		return err
	}
	rec, ok := reg[key]
	if !ok {
		return unavailable("bind", errors.New("unknown key"))
	}
	if rec.Bound() {
		if rec.BoundTo() != hwid {
			return licenseErrors.ErrDeviceMismatch
		}
		return nil
	}

	bound := hwid
	rec.HWID = &bound
	reg[key] = rec

	doc, err := registry.Marshal(reg)
	if err != nil {
		return err
	}
	c.document = doc
	return nil
}

// FailFetch makes Fetch fail with err; nil restores it.
func (c *MemoryChannel) FailFetch(err error) {
	c.mu.Lock()
	c.failFetch = err
	c.mu.Unlock()
}

// FailPublish makes Publish fail with err; nil restores it.
func (c *MemoryChannel) FailPublish(err error) {
	c.mu.Lock()
	c.failPublish = err
	c.mu.Unlock()
}

// Document returns the held document.
func (c *MemoryChannel) Document() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.document...)
}

// Calls returns the fetch and publish counts.
func (c *MemoryChannel) Calls() (fetches, publishes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches, c.publishes
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", licenseErrors.ErrChannelUnavailable, op, err)
}
