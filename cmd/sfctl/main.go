package main

import (
	"os"

	"github.com/Sakib25800/framer-salesforce-api/cmd/sfctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
