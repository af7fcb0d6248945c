package main

import (
	_ "time/tzdata"

	"nse-history/internal/cli"
)

func main() {
	cli.Execute()
}
