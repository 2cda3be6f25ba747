package main

import "livecast/cmd/livecast/cli"

func main() {
	cli.Execute()
}
