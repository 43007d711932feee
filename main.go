package main

import "github.com/alejoacosta74/kraken-ws/cmd"

func main() {
	cmd.Execute()
}
