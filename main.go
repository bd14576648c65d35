package main

import "github.com/jbmetz/go-bde/cmd"

func main() {
	cmd.Execute()
}
