// Command marginalia is a retrieval-augmented question answering CLI
// for Readwise highlights.
package main

import (
	"github.com/joho/godotenv"

	"github.com/marginal-labs/marginalia-cli/internal/adapters/driving/cli"
)

func main() {
	// A missing .env is fine; the environment may carry the token.
	_ = godotenv.Load()
	cli.Execute()
}
