package main

import "topster/cmd"

func main() {
	cmd.Execute()
}
