package main

import (
	"os"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/cmd"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
