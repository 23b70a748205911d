package main

import (
	"os"

	"github.com/AlekseyRodimkin/warehouse/cmd/warehousectl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
