package gossip

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	lpnetwork "github.com/libp2p/go-libp2p/core/network"
	lppeer "github.com/libp2p/go-libp2p/core/peer"
)

// Set of requests served over the sync stream.
const (
	kindStatus  = "status"
	kindBlocks  = "blocks"
	kindMempool = "mempool"
)

// request is written as a single JSON line on the sync stream.
type request struct {
	Kind string `json:"kind"`
	From uint64 `json:"from,omitempty"`
}

// response is written as a single JSON line in reply to a request.
type response struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// request opens a stream to the peer, sends the request and decodes the
// data of the response into dataRecv.
func (g *Gossip) request(ctx context.Context, id lppeer.ID, req request, dataRecv any) error {
	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	stream, err := g.host.NewStream(ctx, id, syncProtocol)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(stream)
	if _, err := w.Write(append(data, '\n')); err != nil {
		stream.Reset()
		return err
	}
	if err := w.Flush(); err != nil {
		stream.Reset()
		return err
	}

	line, err := bufio.NewReader(stream).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if resp.Error != "" {
		return fmt.Errorf("peer %s: %s", id, resp.Error)
	}

	if dataRecv == nil || len(resp.Data) == 0 {
		return nil
	}

	return json.Unmarshal(resp.Data, dataRecv)
}

// handleStream serves a single request from a peer.
func (g *Gossip) handleStream(stream lpnetwork.Stream) {
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(streamTimeout))

	line, err := bufio.NewReader(stream).ReadBytes('\n')
	if err != nil {
		g.evHandler("gossip: handleStream: %s: read: %s", stream.Conn().RemotePeer(), err)
		stream.Reset()
		return
	}

	var resp response

	data, err := g.serve(line)
	switch {
	case err != nil:
		resp.Error = err.Error()
	default:
		resp.Data = data
	}

	out, err := json.Marshal(resp)
	if err != nil {
		stream.Reset()
		return
	}

	w := bufio.NewWriter(stream)
	if _, err := w.Write(append(out, '\n')); err != nil {
		stream.Reset()
		return
	}
	w.Flush()
}

// serve performs the request against the deliverer.
func (g *Gossip) serve(line []byte) (json.RawMessage, error) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	g.mu.RLock()
	d := g.deliverer
	g.mu.RUnlock()

	if d == nil {
		return nil, ErrNotStarted
	}

	switch req.Kind {
	case kindStatus:
		meta, _ := d.RetrieveHead()
		return json.Marshal(peer.PeerStatus{
			LatestBlockHash:   meta.Hash,
			LatestBlockNumber: meta.Height,
			LatestBlockWeight: meta.Weight.String(),
		})

	case kindBlocks:
		blocks, err := d.QueryBlocksByNumber(req.From, state.QueryLatest)
		if err != nil {
			return nil, err
		}

		blocksData := make([]database.BlockData, len(blocks))
		for i, block := range blocks {
			blocksData[i] = database.NewBlockData(block)
		}
		return json.Marshal(blocksData)

	case kindMempool:
		return json.Marshal(d.RetrieveMempool())
	}

	return nil, fmt.Errorf("unknown request %q", req.Kind)
}
