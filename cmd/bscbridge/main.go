package main

import "github.com/OpenTraceLab/OpenTraceBSC/cmd/bscbridge/cmd"

func main() {
	cmd.Execute()
}
