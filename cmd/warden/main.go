package main

import (
	"os"

	"github.com/majorcontext/warden/cmd/warden/cli"
)

func main() {
	os.Exit(cli.Execute())
}
