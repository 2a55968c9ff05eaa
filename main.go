package main

import (
	"os"

	"PgBackuper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
