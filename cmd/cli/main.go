package main

import "github.com/callpath-core/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
