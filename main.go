package main

import "github.com/nextlevelbuilder/aish/cmd"

func main() {
	cmd.Execute()
}
