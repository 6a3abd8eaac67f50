package main

import "github.com/vietddude/oanda/internal/cli"

func main() {
	cli.Execute()
}
