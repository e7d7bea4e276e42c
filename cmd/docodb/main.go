package main

import "github.com/aweris/docodb/cmd/docodb/cmd"

func main() {
	cmd.Execute()
}
