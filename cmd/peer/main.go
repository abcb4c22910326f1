package main

import "github.com/dkeye/cowatch/internal/cli"

func main() {
	cli.Execute()
}
