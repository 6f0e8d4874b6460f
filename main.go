package main

import "github.com/ftl/rfheatmap/cmd"

func main() {
	cmd.Execute()
}
