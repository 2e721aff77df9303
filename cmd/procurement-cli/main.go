package main

import (
	"os"

	"github.com/malbeclabs/procurement-agent/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
