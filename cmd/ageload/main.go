// Command ageload generates synthetic graph datasets and bulk-loads them into
// Apache AGE.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/emergent-company/ageload/internal/cmd"
)

func main() {
	// Load .env files if present. Values in .env.local win.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
