package main

import "github.com/tristendillon/delombok/cmd"

func main() {
	cmd.Execute()
}
