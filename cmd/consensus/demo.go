// Copyright (C) 2024-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/spf13/cobra"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/commit"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/config"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/crypto"
	"github.com/dagbft/core/engine"
	"github.com/dagbft/core/store"
)

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a small in-process committee through the commit engine",
		RunE:  runDemo,
	}
	cmd.Flags().Int("authorities", 4, "Number of committee authorities")
	cmd.Flags().Int("rounds", 20, "Number of proposal rounds to run")
	return cmd
}

// noopRejected supplies an empty rejected-transaction set for every
// commit, since the demo never executes real transactions.
type noopRejected struct{}

func (noopRejected) RejectedFor(*commit.Commit) (map[block.Ref][]uint32, error) {
	return nil, nil
}

// demoPayloads supplies no transaction payload.
type demoPayloads struct{}

func (demoPayloads) NextPayload() []byte { return nil }

func runDemo(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("authorities")
	rounds, _ := cmd.Flags().GetInt("rounds")

	epoch := uint64(1)
	signers := make(map[ids.NodeID]*crypto.Ed25519Signer, n)
	pubKeys := make(map[ids.NodeID][]byte, n)
	authorities := make([]committee.Authority, 0, n)
	for i := 0; i < n; i++ {
		nodeID := ids.GenerateTestNodeID()
		signer, err := crypto.NewEd25519Signer(nodeID)
		if err != nil {
			return fmt.Errorf("generate signer: %w", err)
		}
		signers[nodeID] = signer
		pubKeys[nodeID] = signer.PublicKey()
		authorities = append(authorities, committee.Authority{ID: nodeID, PublicKey: signer.PublicKey(), Stake: 1})
	}
	comm, err := committee.New(epoch, authorities)
	if err != nil {
		return err
	}
	verifier := &crypto.KeyVerifier{PublicKeys: pubKeys}

	genesisCerts := make([]*block.Certificate, 0, n)
	for _, author := range comm.Ordered() {
		b := &block.Block{Epoch: epoch, Round: 0, Author: author}
		_, boundary := b.Encode()
		digest := crypto.Digest256(boundary)
		sigs := make(map[ids.NodeID][]byte, len(signers))
		for signerID, signer := range signers {
			sig, err := signer.Sign(digest[:])
			if err != nil {
				return err
			}
			sigs[signerID] = sig
		}
		genesisCerts = append(genesisCerts, &block.Certificate{Block: b, Digest: digest, Signatures: sigs})
	}

	log := corelog.NewNop()
	params := config.DefaultParams()
	params.ProposerMinDelay = 0

	engines := make(map[ids.NodeID]*engine.Engine, n)
	for _, author := range comm.Ordered() {
		deps := engine.Deps{
			Epoch:       epoch,
			Committee:   comm,
			Params:      params,
			Log:         log,
			Store:       store.New(memdb.New(), log),
			Signer:      signers[author],
			Verifier:    verifier,
			Payloads:    demoPayloads{},
			RejectedTxs: noopRejected{},
		}
		e := engine.New(deps, genesisCerts)
		if err := e.Initialize(context.Background()); err != nil {
			return fmt.Errorf("initialize authority %s: %w", author, err)
		}
		engines[author] = e
	}

	commitCount := 0
	for round := 0; round < rounds; round++ {
		certs := make([]*block.Certificate, 0, n)
		for _, author := range comm.Ordered() {
			e := engines[author]
			b, digest, err := e.Propose(nil)
			if err != nil {
				return fmt.Errorf("authority %s propose: %w", author, err)
			}
			sigs := make(map[ids.NodeID][]byte, len(signers))
			for signerID, signer := range signers {
				sig, err := signer.Sign(digest[:])
				if err != nil {
					return err
				}
				sigs[signerID] = sig
			}
			certs = append(certs, &block.Certificate{Block: b, Digest: digest, Signatures: sigs})
		}

		for _, cert := range certs {
			for _, author := range comm.Ordered() {
				commits, err := engines[author].InsertBlock(context.Background(), cert)
				if err != nil {
					return fmt.Errorf("authority %s insert: %w", author, err)
				}
				if author == comm.Ordered()[0] {
					commitCount += len(commits)
				}
			}
		}

		for _, author := range comm.Ordered() {
			engines[author].MaybeAdvanceRound()
		}
		time.Sleep(time.Millisecond)
	}

	fmt.Printf("ran %d rounds across %d authorities, %d commits emitted\n", rounds, n, commitCount)
	return nil
}
