package main

import "github.com/krivanek/rollcall/cmd"

func main() {
	cmd.Execute()
}
