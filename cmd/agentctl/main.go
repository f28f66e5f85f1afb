package main

import "github.com/txsociety/ton-agent/internal/cli"

func main() {
	cli.Execute()
}
