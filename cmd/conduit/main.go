package main

import "github.com/conduit-mcp/conduit/cmd/conduit/cmd"

func main() {
	cmd.Execute()
}
