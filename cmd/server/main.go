package main

import "github.com/telprobe/telprobe/services/server/cli"

func main() {
	cli.Execute()
}
