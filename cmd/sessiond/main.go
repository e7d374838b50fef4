package main

import "sessioncore/cmd/sessiond/cmd"

func main() {
	cmd.Execute()
}
