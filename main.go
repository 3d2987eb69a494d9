package main

import "github.com/RichardoC/pad-chat/cmd"

func main() {
	cmd.Execute()
}
