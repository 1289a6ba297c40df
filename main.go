package main

import "github.com/lepinkainen/bookpipeline/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
