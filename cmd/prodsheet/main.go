package main

import (
	"os"

	"github.com/charmbracelet/log"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		log.Error("prodsheet failed", "error", err)
		os.Exit(1)
	}
}
