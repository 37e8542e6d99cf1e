/*
Package blockchain groups the packages that make up a forkchain node. This
overview is a series of notes that have helped with the development of the
code.

# Notes

A node keeps every valid block it has seen, not only the blocks on its
canonical chain. Each stored block has an index entry carrying its parent,
height, accumulated weight and validity. The canonical head is the valid block
with the greatest accumulated weight. Equal weights go to the lower block
hash so every node picks the same head from the same set of blocks.

Blocks can arrive in any order. A block whose parent is unknown is held as an
orphan until the parent arrives or the orphan times out. A transaction whose
sender is unknown is held the same way until a block funds the sender.

When a side chain becomes heavier than the canonical chain the node
reorganizes. The canonical chain is rolled back to the common ancestor using
the undo records written when each block was applied, the side chain is
replayed on top, and the result is written to the store in one batch. A
failure at any step leaves the previous head and store untouched.

# Packages

	consensus   proof of work and proof of authority engines, fork choice
	database    accounts, transactions, blocks and validation errors
	genesis     genesis file loading
	ledger      typed chain records on top of a store
	mempool     fee ordered pool of pending transactions
	merkle      commitment root over the transactions of a block
	network     transport contract, HTTP and libp2p gossip transports
	peer        known peers and their status
	signature   hashing, signing and recovery
	state       transaction and block admission, fork choice, reorganization
	storage     ordered key value store contract, memory and badger backends
	worker      mining, transaction sharing and peer sync workflows
*/
package blockchain
