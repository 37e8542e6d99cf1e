// Package nameservice reads a folder of account key files and creates a name
// service lookup for the accounts they control.
package nameservice

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// keyExt is the file extension of a private key file.
const keyExt = ".ecdsa"

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[database.AccountID]string
	names    map[string]database.AccountID
}

// New constructs a name service with accounts from the key files found
// under the root folder. The file name without extension is the name.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[database.AccountID]string),
		names:    make(map[string]database.AccountID),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExt {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		name := strings.TrimSuffix(filepath.Base(fileName), keyExt)
		accountID := database.PublicKeyToAccountID(privateKey.PublicKey)

		ns.accounts[accountID] = name
		ns.names[name] = accountID

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account. The account id is
// returned when no name is known.
func (ns *NameService) Lookup(accountID database.AccountID) string {
	name, exists := ns.accounts[accountID]
	if !exists {
		return string(accountID)
	}
	return name
}

// Resolve returns the account for the specified name.
func (ns *NameService) Resolve(name string) (database.AccountID, bool) {
	accountID, exists := ns.names[name]
	return accountID, exists
}

// KeyPath returns the path of the key file for the named account.
func KeyPath(root string, name string) string {
	return filepath.Join(root, name+keyExt)
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[database.AccountID]string {
	cpy := make(map[database.AccountID]string, len(ns.accounts))
	for accountID, name := range ns.accounts {
		cpy[accountID] = name
	}
	return cpy
}

// Names returns the known names in sorted order.
func (ns *NameService) Names() []string {
	names := make([]string, 0, len(ns.names))
	for name := range ns.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
