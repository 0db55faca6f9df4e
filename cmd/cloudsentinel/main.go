package main

import (
	"github.com/DrSkyle/cloudsentinel/cmd/cloudsentinel/commands"
)

func main() {
	commands.Execute()
}
