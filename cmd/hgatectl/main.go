package main

import "github.com/pilab-dev/hospital-gate/cmd/hgatectl/cmd"

func main() {
	cmd.Execute()
}
