// Package transport declares the Network boundary of spec.md §6: the
// send/receive surface the core needs from whatever gossip layer hosts
// it. Transport internals are out of scope (spec.md §1); this package
// only fixes the contract, consolidated into one interface instead of
// the teacher's three overlapping, mutually conflicting AppSender
// declarations (core/appsender/{appsender,app_sender,sender}.go).
package transport

import (
	"context"
	"time"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
)

// Ack is a peer's acknowledgment of a locally-proposed block: a
// signature over the block's BlockRef (spec.md §4.5's certifier input).
type Ack struct {
	Peer      ids.NodeID
	Ref       block.Ref
	Signature []byte
}

// IncomingBlock pairs a received block with the peer that sent it.
type IncomingBlock struct {
	Peer ids.NodeID
	Cert *block.Certificate
}

// Network is the transport boundary of spec.md §6. Peer identity must
// already be bound to the committee's public keys at handshake time;
// implementations drop messages from unknown identities before they
// ever reach the core.
type Network interface {
	// SendBlock sends cert to a single peer.
	SendBlock(ctx context.Context, peer ids.NodeID, cert *block.Certificate) error

	// BroadcastBlock sends cert to every connected peer.
	BroadcastBlock(ctx context.Context, cert *block.Certificate) error

	// RequestBlocks fetches a batch of blocks from peer, bounded by
	// timeout.
	RequestBlocks(ctx context.Context, peer ids.NodeID, refs []block.Ref, timeout time.Duration) ([]*block.Certificate, error)

	// IncomingBlocks streams blocks received from any peer until ctx is
	// done.
	IncomingBlocks(ctx context.Context) <-chan IncomingBlock

	// IncomingAcks streams acknowledgment signatures received from any
	// peer until ctx is done.
	IncomingAcks(ctx context.Context) <-chan Ack
}
