// This program performs administrative tasks against the ledger of a stopped
// node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/forkchain/app/tooling/admin/commands"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/forkchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	if len(os.Args) < 2 {
		return errors.New("usage: admin accounts|chain|block [args]")
	}

	path := os.Getenv("ADMIN_DB_PATH")
	if path == "" {
		path = "zblock/data"
	}

	log.Infow("startup", "version", build, "db", path)

	kv, err := disk.Open(path)
	if err != nil {
		return err
	}

	ldgr := ledger.New(kv)
	defer ldgr.Close()

	return processCommands(os.Args, ldgr)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, ldgr *ledger.Ledger) error {
	switch args[1] {
	case "accounts":
		if err := commands.Accounts(os.Stdout, args, ldgr); err != nil {
			return fmt.Errorf("getting accounts: %w", err)
		}

	case "chain":
		if err := commands.Chain(os.Stdout, args, ldgr); err != nil {
			return fmt.Errorf("getting chain: %w", err)
		}

	case "block":
		if err := commands.Block(os.Stdout, args, ldgr); err != nil {
			return fmt.Errorf("getting block: %w", err)
		}

	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
