package main

import "github.com/okulovsky/tgweb-automation/cmd/tgwebd/cmd"

func main() {
	cmd.Execute()
}
