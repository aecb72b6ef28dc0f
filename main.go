package main

import "github.com/kamilpajak/testpilot/cmd/testpilot"

func main() {
	testpilot.Execute()
}
