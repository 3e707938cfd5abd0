package main

import "github.com/Nyenzo/tule-initiative/cmd/tuleapi/cmd"

func main() {
	cmd.Execute()
}
