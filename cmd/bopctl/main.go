package main

import (
	"os"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/cmd/bopctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
