package main

import "github.com/localbin/localbin/cmd"

func main() {
	cmd.Execute()
}
