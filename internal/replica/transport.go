// Package replica moves reptiles and block results between independent
// replicas at explicit synchronization points.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed = errors.New("replica transport closed")
	ErrRank   = errors.New("invalid replica rank")
)

// Transport is blocking point-to-point messaging between ranks 0..Size-1.
// A failed Send or Receive leaves the exchange undefined; callers recover by
// restarting from the last checkpoint.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest int, payload []byte) error
	Receive(ctx context.Context, src int) ([]byte, error)
}

// Mesh is an in-process transport fabric with one channel per ordered pair
// of ranks, so messages between two ranks arrive in the order sent.
type Mesh struct {
	size  int
	links [][]chan []byte
	done  chan struct{}
	once  sync.Once
}

func NewMesh(size int) (*Mesh, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: mesh size %d", ErrRank, size)
	}
	links := make([][]chan []byte, size)
	for src := range links {
		links[src] = make([]chan []byte, size)
		for dst := range links[src] {
			links[src][dst] = make(chan []byte, 1)
		}
	}
	return &Mesh{size: size, links: links, done: make(chan struct{})}, nil
}

func (m *Mesh) Size() int {
	return m.size
}

// Endpoint returns the transport seen by rank.
func (m *Mesh) Endpoint(rank int) (Transport, error) {
	if rank < 0 || rank >= m.size {
		return nil, fmt.Errorf("%w: %d of %d", ErrRank, rank, m.size)
	}
	return &endpoint{mesh: m, rank: rank}, nil
}

// Close unblocks every pending and future operation with ErrClosed.
func (m *Mesh) Close() {
	m.once.Do(func() { close(m.done) })
}

type endpoint struct {
	mesh *Mesh
	rank int
}

func (e *endpoint) Rank() int { return e.rank }
func (e *endpoint) Size() int { return e.mesh.size }

func (e *endpoint) check(peer int) error {
	if peer < 0 || peer >= e.mesh.size || peer == e.rank {
		return fmt.Errorf("%w: rank %d cannot exchange with %d", ErrRank, e.rank, peer)
	}
	return nil
}

func (e *endpoint) Send(ctx context.Context, dest int, payload []byte) error {
	if err := e.check(dest); err != nil {
		return err
	}
	msg := append([]byte(nil), payload...)
	select {
	case e.mesh.links[e.rank][dest] <- msg:
		return nil
	case <-e.mesh.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *endpoint) Receive(ctx context.Context, src int) ([]byte, error) {
	if err := e.check(src); err != nil {
		return nil, err
	}
	select {
	case msg := <-e.mesh.links[src][e.rank]:
		return msg, nil
	case <-e.mesh.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
