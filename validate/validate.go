// Package validate is the stateless block validator (C3): a pure
// function from a block (plus the local context needed to check it) to
// a pass/fail Result, applying spec.md §3's invariants and §4.2's
// additional checks. It never mutates state and is always run before a
// block is considered for DAG insertion.
package validate

import (
	"go.uber.org/zap"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/crypto"
)

// Context carries everything validate needs beyond the block itself: the
// running committee, local round estimate, wall-clock reading, and
// lookups for resolving parent metadata and a verifier for signatures.
type Context struct {
	Committee *committee.Committee
	GCDepth   block.Round

	// GCRound is the DAG's actual current garbage-collection frontier
	// (engine.Engine.gcRoundLocked()), as opposed to GCDepth which is
	// only the configured window width. The gap exception in
	// checkParents is only legitimate relative to this real frontier.
	GCRound block.Round

	LocalRound   block.Round
	RoundBound   block.Round // spec.md §4.2's "small_bound", e.g. 500
	NowMS        int64
	WarnSkewMS   int64
	RejectSkewMS int64

	Log corelog.Logger // optional; used only to warn on skew (spec.md §4.2)

	Verifier crypto.Verifier

	// ParentOf resolves a parent BlockRef to its certified timestamp and
	// whether it is known at all (present in the DAG, the store, or
	// implicitly present because its round is at or below gc_round).
	ParentOf func(ref block.Ref) (timestampMS int64, known bool)
}

// Result is the outcome of validating one block.
type Result struct {
	Err error // nil on success
}

// OK reports whether the block passed validation.
func (r Result) OK() bool { return r.Err == nil }

// Validate runs every check of spec.md §3 and §4.2 against b, short-
// circuiting on the first failure. digest is the block's precomputed
// digest (crypto facade, C1); sig is the signature to verify.
func Validate(ctx *Context, b *block.Block, digest ids.ID, sig []byte) Result {
	if err := checkGenesis(b); err != nil {
		return Result{Err: err}
	}
	if err := checkEpoch(ctx, b); err != nil {
		return Result{Err: err}
	}
	if err := checkAuthor(ctx, b); err != nil {
		return Result{Err: err}
	}
	if err := checkRoundBound(ctx, b); err != nil {
		return Result{Err: err}
	}
	if err := checkParents(ctx, b); err != nil {
		return Result{Err: err}
	}
	if err := checkTimestamp(ctx, b); err != nil {
		return Result{Err: err}
	}
	if err := checkSignature(ctx, b, digest, sig); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func checkGenesis(b *block.Block) error {
	if b.Round == 0 && len(b.Parents) != 0 {
		return consensuserrors.New(consensuserrors.KindValidation, "genesis block must have no parents")
	}
	if b.Round != 0 && len(b.Parents) == 0 {
		return consensuserrors.New(consensuserrors.KindValidation, "non-genesis block must have parents")
	}
	return nil
}

func checkEpoch(ctx *Context, b *block.Block) error {
	if b.Epoch != ctx.Committee.Epoch {
		return consensuserrors.New(consensuserrors.KindValidation, "epoch does not match running committee")
	}
	return nil
}

func checkAuthor(ctx *Context, b *block.Block) error {
	if !ctx.Committee.Has(b.Author) {
		return consensuserrors.WithPeer(consensuserrors.KindValidation, b.Author.String(), "author is not a committee member", nil)
	}
	return nil
}

func checkRoundBound(ctx *Context, b *block.Block) error {
	if b.Round > ctx.LocalRound+ctx.RoundBound {
		return consensuserrors.New(consensuserrors.KindValidation, "round exceeds local round by more than the bound")
	}
	return nil
}

func checkParents(ctx *Context, b *block.Block) error {
	if b.IsGenesis() {
		return nil
	}
	if len(b.Parents) == 0 {
		return consensuserrors.New(consensuserrors.KindValidation, "parent set is empty")
	}

	seen := make(map[ids.NodeID]struct{}, len(b.Parents))
	var stake uint64
	ownPresent := false
	var minRound block.Round
	if ctx.GCDepth < b.Round {
		minRound = b.Round - ctx.GCDepth
	}

	for _, p := range b.Parents {
		if _, dup := seen[p.Author]; dup {
			return consensuserrors.New(consensuserrors.KindValidation, "duplicate author in parent set")
		}
		seen[p.Author] = struct{}{}

		if p.Round >= b.Round {
			return consensuserrors.New(consensuserrors.KindValidation, "parent round not strictly less than block round")
		}
		if p.Round < minRound {
			return consensuserrors.New(consensuserrors.KindValidation, "parent round below the GC floor")
		}
		if p.Author == b.Author && p.Round == b.Round-1 {
			ownPresent = true
		}
		if p.Round == b.Round-1 {
			stake += ctx.Committee.StakeOf(p.Author)
		}
		if ctx.ParentOf != nil {
			if _, known := ctx.ParentOf(p); !known {
				return consensuserrors.New(consensuserrors.KindMissingParent, "parent not yet present")
			}
		}
	}

	if !ownPresent && b.Round-1 > ctx.GCRound {
		// A gap is only permitted when the author's own R-1 slot is at or
		// below the DAG's real GC frontier, not merely within the
		// configured GC window width (spec.md §3: "except when the author
		// has no prior block ... permitted only under GC rules").
		return consensuserrors.New(consensuserrors.KindValidation, "missing author's own prior-round parent")
	}
	if !ctx.Committee.MeetsQuorum(stake) {
		return consensuserrors.New(consensuserrors.KindValidation, "parent stake does not meet quorum")
	}
	return nil
}

func checkTimestamp(ctx *Context, b *block.Block) error {
	if ctx.ParentOf != nil {
		for _, p := range b.Parents {
			parentTS, known := ctx.ParentOf(p)
			if known && b.TimestampMS < parentTS {
				return consensuserrors.New(consensuserrors.KindValidation, "timestamp precedes a parent's timestamp")
			}
		}
	}

	skew := b.TimestampMS - ctx.NowMS
	if skew < 0 {
		skew = -skew
	}
	if ctx.RejectSkewMS > 0 && skew > ctx.RejectSkewMS {
		return consensuserrors.New(consensuserrors.KindValidation, "timestamp exceeds reject skew bound")
	}
	if ctx.WarnSkewMS > 0 && skew > ctx.WarnSkewMS && ctx.Log != nil {
		ctx.Log.Warn("block timestamp skew exceeds warn bound",
			zap.String("author", b.Author.String()), zap.Int64("skew_ms", skew))
	}
	return nil
}

func checkSignature(ctx *Context, b *block.Block, digest ids.ID, sig []byte) error {
	if ctx.Verifier == nil {
		return nil
	}
	if !ctx.Verifier.Verify(b.Author, digest[:], sig) {
		return consensuserrors.WithPeer(consensuserrors.KindValidation, b.Author.String(), "signature does not verify", nil)
	}
	return nil
}
