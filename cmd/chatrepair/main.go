// Package main provides the entry point for the chatrepair CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/chatrepair/cmd/chatrepair/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
