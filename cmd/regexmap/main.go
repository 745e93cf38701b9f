package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/blociq/blociq-backend/internal/compliance/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "regexmap: %v\n", err)
		os.Exit(1)
	}
}
