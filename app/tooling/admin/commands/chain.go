package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
)

// Chain prints the canonical chain between the optional from and to heights.
func Chain(w io.Writer, args []string, ldgr *ledger.Ledger) error {
	view, err := ldgr.Snapshot()
	if err != nil {
		return err
	}
	defer view.Release()

	head, err := view.Head()
	if err != nil {
		return err
	}

	from, to := uint64(0), head.Height
	if len(args) > 2 {
		if from, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		if to, err = strconv.ParseUint(args[3], 10, 64); err != nil {
			return err
		}
	}

	hashes, err := view.CanonicalRange(from, to)
	if err != nil {
		return err
	}

	for _, hash := range hashes {
		meta, err := view.Meta(hash)
		if err != nil {
			return err
		}

		block, err := view.Block(hash)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Height: %d  Hash: %s  Weight: %s  Trans: %d\n", meta.Height, meta.Hash, meta.Weight, len(block.Values()))
	}

	return nil
}

// Block prints the index entry and transactions of any stored block.
func Block(w io.Writer, args []string, ldgr *ledger.Ledger) error {
	if len(args) < 3 {
		return errors.New("block hash required")
	}

	view, err := ldgr.Snapshot()
	if err != nil {
		return err
	}
	defer view.Release()

	meta, err := view.Meta(args[2])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Hash: %s\nParent: %s\nHeight: %d\nWeight: %s\nStatus: %s\n", meta.Hash, meta.Parent, meta.Height, meta.Weight, meta.Status)
	if meta.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", meta.Reason)
	}

	block, err := view.Block(args[2])
	if err != nil {
		return err
	}

	for _, tx := range block.Values() {
		fmt.Fprintf(w, "Tx: %s  From: %s  To: %s  Nonce: %d  Value: %d  Fee: %d\n", tx.ID(), tx.FromID, tx.ToID, tx.Nonce, tx.Value, tx.Fee)
	}

	return nil
}
