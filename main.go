package main

import (
	"os"

	"github.com/connecteur-digital/chatwidget/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
