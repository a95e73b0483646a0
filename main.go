package main

import "netpromote/cmd"

func main() {
	cmd.Execute()
}
