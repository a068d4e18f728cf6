package main

import "CineFM/cmd"

func main() {
	cmd.Execute()
}
