package main

import "eventmap/cmd/eventmap/cmd"

func main() {
	cmd.Execute()
}
