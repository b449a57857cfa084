package main

import (
	"os"

	devnetcmd "github.com/malbeclabs/bfdconverge/e2e/internal/devnet/cmd"
)

func main() {
	os.Exit(int(devnetcmd.Run()))
}
