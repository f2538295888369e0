package main

import "quest-service/cmd"

func main() {
	cmd.Execute()
}
