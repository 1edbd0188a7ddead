package main

import "github.com/iksnae/feed-collector/cmd"

func main() {
	cmd.Execute()
}
