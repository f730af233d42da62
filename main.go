package main

import "github.com/mame82/mtkuartboot/cmd"

func main() {
	cmd.Execute()
}
