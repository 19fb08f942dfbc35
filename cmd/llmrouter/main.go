package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/llmrouter/cmd/llmrouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error("llmrouter exited with error", "err", err)
		os.Exit(1)
	}
}
