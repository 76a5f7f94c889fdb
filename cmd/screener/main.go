package main

import (
	"os"

	"github.com/bobmcallan/screener/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
