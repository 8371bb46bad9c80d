package main

import "minigpt/cmd"

func main() {
	cmd.Execute()
}
