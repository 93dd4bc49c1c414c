package main

import "github.com/meetsign/meetsign/cmd"

func main() {
	cmd.Execute()
}
