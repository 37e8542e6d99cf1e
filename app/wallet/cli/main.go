package main

import "github.com/ardanlabs/forkchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
