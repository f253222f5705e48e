package main

import "github.com/etabotai/etabot/internal/infrastructure/cli"

func main() {
	cli.Main()
}
