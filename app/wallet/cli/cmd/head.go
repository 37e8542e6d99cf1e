package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the canonical head of the node.",
	Run:   headRun,
}

func init() {
	rootCmd.AddCommand(headCmd)
}

func headRun(cmd *cobra.Command, args []string) {
	var hd struct {
		Hash    string `json:"hash"`
		Number  uint64 `json:"number"`
		Weight  string `json:"weight"`
		Engine  string `json:"engine"`
		Orphans int    `json:"orphans"`
		Pending int    `json:"pending"`
	}

	if err := send(http.MethodGet, "/v1/head", nil, &hd); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Hash:   ", hd.Hash)
	fmt.Println("Number: ", hd.Number)
	fmt.Println("Weight: ", hd.Weight)
	fmt.Println("Engine: ", hd.Engine)
	fmt.Println("Held:   ", hd.Orphans, "orphans,", hd.Pending, "pending")
}
