package main

import (
	"os"

	"github.com/AnotherFoxGuy/sogeBot/cmd/sogebot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
