package consensus_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey1 = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	pkHexKey2 = "aed31b6b5a1ab1bc2bd2a8b7a2a1f1b1f7c0a84c8b6a0f5f2bd5f1b6d7e3c3a1"
)

func noop(v string, args ...any) {}

func newBlock(t *testing.T) database.Block {
	genesis := database.GenesisBlock(1)
	block, err := database.NewBlock(genesis.Header, genesis.Hash(), "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", 0, 2, nil)
	if err != nil {
		t.Fatalf("Should be able to construct a block: %v", err)
	}
	return block
}

// =============================================================================

func TestPOW(t *testing.T) {
	t.Log("Given the need to seal blocks with work.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sealing a block with difficulty 2.", testID)
		{
			engine, err := consensus.NewEngine(consensus.EnginePOW, consensus.Config{Difficulty: 2})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the engine: %v", failed, testID, err)
			}

			block := newBlock(t)
			engine.Prepare(&block.Header)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			sealed, err := engine.Seal(ctx, block, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to seal the block.", success, testID)

			if hash := sealed.Hash(); hash[2:4] != "00" {
				t.Fatalf("\t%s\tTest %d:\tShould have two leading zeros: %s", failed, testID, hash)
			}
			t.Logf("\t%s\tTest %d:\tShould have two leading zeros.", success, testID)

			if err := engine.Verify(sealed.Header); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to verify the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to verify the block.", success, testID)

			low := sealed.Header
			low.Difficulty = 1
			if err := engine.Verify(low); !errors.Is(err, database.ErrBadProof) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a lower difficulty: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a lower difficulty.", success, testID)

			high := sealed.Header
			high.Difficulty = 60
			if err := engine.Verify(high); !errors.Is(err, database.ErrBadProof) {
				t.Fatalf("\t%s\tTest %d:\tShould reject an unsolved hash: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an unsolved hash.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen sealing is cancelled.", testID)
		{
			engine := consensus.NewPOW(64)

			block := newBlock(t)
			engine.Prepare(&block.Header)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()

			if _, err := engine.Seal(ctx, block, noop); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest %d:\tShould stop with the context error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould stop with the context error.", success, testID)
		}
	}
}

func TestPOA(t *testing.T) {
	pk1, err := crypto.HexToECDSA(pkHexKey1)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %v", err)
	}
	pk2, err := crypto.HexToECDSA(pkHexKey2)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %v", err)
	}

	auths := []database.AccountID{
		database.PublicKeyToAccountID(pk1.PublicKey),
		database.PublicKeyToAccountID(pk2.PublicKey),
	}

	e1, err := consensus.NewPOA(auths, pk1)
	if err != nil {
		t.Fatalf("Should be able to construct the engine: %v", err)
	}
	e2, err := consensus.NewPOA(auths, pk2)
	if err != nil {
		t.Fatalf("Should be able to construct the engine: %v", err)
	}

	t.Log("Given the need to seal blocks by authority.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the authorities take turns.", testID)
		{
			block := newBlock(t)
			e1.Prepare(&block.Header)

			inTurn, outTurn := e1, e2
			if !e1.Selected(block.Header.ParentHash).Equal(auths[0]) {
				inTurn, outTurn = e2, e1
			}

			if !inTurn.InTurn(block.Header.ParentHash) || outTurn.InTurn(block.Header.ParentHash) {
				t.Fatalf("\t%s\tTest %d:\tShould report which authority is in turn.", failed, testID)
			}

			if _, err := outTurn.Seal(context.Background(), block, noop); !errors.Is(err, consensus.ErrNotInTurn) {
				t.Fatalf("\t%s\tTest %d:\tShould not seal out of turn: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not seal out of turn.", success, testID)

			sealed, err := inTurn.Seal(context.Background(), block, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal in turn: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to seal in turn.", success, testID)

			if err := outTurn.Verify(sealed.Header); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to verify from any node: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to verify from any node.", success, testID)

			tampered := sealed.Header
			tampered.TimeStamp++
			if err := inTurn.Verify(tampered); !errors.Is(err, database.ErrBadProof) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a tampered header: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a tampered header.", success, testID)
		}
	}
}

func TestForkChoice(t *testing.T) {
	t.Log("Given the need to choose between competing chains.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen weighing blocks.", testID)
		{
			work, err := consensus.RetrieveForkChoice(consensus.ForkChoiceWork)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the work rule: %v", failed, testID, err)
			}

			if w := work.Weight(database.BlockHeader{Difficulty: 2}); w.Cmp(big.NewInt(256)) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould weigh difficulty 2 as 256: %v", failed, testID, w)
			}
			t.Logf("\t%s\tTest %d:\tShould weigh difficulty 2 as 256.", success, testID)

			longest, err := consensus.RetrieveForkChoice(consensus.ForkChoiceLongest)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the longest rule: %v", failed, testID, err)
			}

			if w := longest.Weight(database.BlockHeader{Difficulty: 9}); w.Cmp(big.NewInt(1)) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould weigh every block as 1: %v", failed, testID, w)
			}
			t.Logf("\t%s\tTest %d:\tShould weigh every block as 1.", success, testID)

			if _, err := consensus.RetrieveForkChoice("heaviest"); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould not retrieve an unknown rule.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not retrieve an unknown rule.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen comparing chains.", testID)
		{
			if !consensus.Better(big.NewInt(5), "0xff", big.NewInt(4), "0x00") {
				t.Fatalf("\t%s\tTest %d:\tShould prefer the heavier chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould prefer the heavier chain.", success, testID)

			if !consensus.Better(big.NewInt(5), "0x0a", big.NewInt(5), "0x0b") {
				t.Fatalf("\t%s\tTest %d:\tShould break ties by the lowest reference.", failed, testID)
			}
			if consensus.Better(big.NewInt(5), "0x0b", big.NewInt(5), "0x0a") {
				t.Fatalf("\t%s\tTest %d:\tShould break ties by the lowest reference.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould break ties by the lowest reference.", success, testID)
		}
	}
}
