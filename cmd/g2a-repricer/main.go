package main

import "github.com/malganis13/g2a-automation/internal/cli"

func main() {
	cli.Execute()
}
