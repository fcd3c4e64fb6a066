package main

import "flowbot/cmd"

func main() {
	cmd.Execute()
}
