package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/bridge-cli/internal/app"
)

func main() {
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
