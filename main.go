package main

import "CoverFM/cmd"

func main() {
	cmd.Execute()
}
