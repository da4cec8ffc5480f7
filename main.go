package main

import (
	"github.com/OpenCHAMI/senselink/cmd"
)

func main() {
	cmd.Execute()
}
