package main

import "github.com/dayuer/castbot/cmd"

func main() {
	cmd.Execute()
}
