package main

import "github.com/mapwarden/mapwarden/cmd/mapwarden/cmd"

func main() {
	cmd.Execute()
}
