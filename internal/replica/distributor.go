package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"reptation/internal/checkpoint"
	"reptation/internal/model"
	"reptation/internal/reptile"
)

// root collects checkpoints and block results.
const root = 0

// Distributor exchanges replica state over a Transport. Reptiles travel in
// the checkpoint record layout so one format serves disk and peers.
type Distributor struct {
	t      Transport
	logger *slog.Logger
}

func NewDistributor(t Transport, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{t: t, logger: logger.With("rank", t.Rank())}
}

func (d *Distributor) Rank() int { return d.t.Rank() }
func (d *Distributor) Size() int { return d.t.Size() }

func encodeReptile(r *reptile.Reptile) ([]byte, error) {
	var buf bytes.Buffer
	enc := checkpoint.NewEncoder(&buf)
	if err := enc.Reptile(r); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Distributor) SendReptile(ctx context.Context, dest int, r *reptile.Reptile) error {
	payload, err := encodeReptile(r)
	if err != nil {
		return fmt.Errorf("encode reptile for rank %d: %w", dest, err)
	}
	if err := d.t.Send(ctx, dest, payload); err != nil {
		return fmt.Errorf("send reptile to rank %d: %w", dest, err)
	}
	d.logger.Debug("reptile sent", "dest", dest, "beads", r.Len(), "bytes", len(payload))
	return nil
}

func (d *Distributor) ReceiveReptile(ctx context.Context, src int) (*reptile.Reptile, error) {
	payload, err := d.t.Receive(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("receive reptile from rank %d: %w", src, err)
	}
	r, err := checkpoint.NewDecoder(bytes.NewReader(payload)).Reptile()
	if err != nil {
		return nil, fmt.Errorf("decode reptile from rank %d: %w", src, err)
	}
	return r, nil
}

// Gather collects every rank's reptile at rank 0, in rank order. Other ranks
// send theirs and get nil back. It is the checkpoint exchange barrier.
func (d *Distributor) Gather(ctx context.Context, r *reptile.Reptile) ([]*reptile.Reptile, error) {
	if d.Rank() != root {
		return nil, d.SendReptile(ctx, root, r)
	}
	out := make([]*reptile.Reptile, d.Size())
	out[root] = r
	for src := 1; src < d.Size(); src++ {
		got, err := d.ReceiveReptile(ctx, src)
		if err != nil {
			return nil, err
		}
		out[src] = got
	}
	return out, nil
}

// Scatter hands set[i] to rank i. Rank 0 supplies the whole set; other
// ranks pass nil. Every rank returns its own reptile.
func (d *Distributor) Scatter(ctx context.Context, set []*reptile.Reptile) (*reptile.Reptile, error) {
	if d.Rank() != root {
		return d.ReceiveReptile(ctx, root)
	}
	if len(set) != d.Size() {
		return nil, fmt.Errorf("scatter: %d reptiles for %d ranks", len(set), d.Size())
	}
	for dest := 1; dest < d.Size(); dest++ {
		if err := d.SendReptile(ctx, dest, set[dest]); err != nil {
			return nil, err
		}
	}
	return set[root], nil
}

// ReduceBlocks concatenates every rank's block results at rank 0, ordered
// by rank. Other ranks get nil.
func (d *Distributor) ReduceBlocks(ctx context.Context, blocks []model.BlockRecord) ([]model.BlockRecord, error) {
	if d.Rank() != root {
		payload, err := json.Marshal(blocks)
		if err != nil {
			return nil, fmt.Errorf("encode blocks: %w", err)
		}
		if err := d.t.Send(ctx, root, payload); err != nil {
			return nil, fmt.Errorf("send blocks: %w", err)
		}
		return nil, nil
	}
	out := append([]model.BlockRecord(nil), blocks...)
	for src := 1; src < d.Size(); src++ {
		payload, err := d.t.Receive(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("receive blocks from rank %d: %w", src, err)
		}
		var got []model.BlockRecord
		if err := json.Unmarshal(payload, &got); err != nil {
			return nil, fmt.Errorf("decode blocks from rank %d: %w", src, err)
		}
		out = append(out, got...)
	}
	d.logger.Debug("block results reduced", "blocks", len(out))
	return out, nil
}
