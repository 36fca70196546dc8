package main

import "github.com/markb/cloudtune/cmd"

func main() {
	cmd.Execute()
}
