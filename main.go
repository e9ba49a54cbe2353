package main

import (
	"wrapret/cmd"
)

var version = "v0.3.1"

func main() {
	cmd.Execute(version)
}
