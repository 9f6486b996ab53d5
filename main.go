package main

import (
	"github.com/tanpawarit/PolicyPilot/cmd"
	_ "github.com/tanpawarit/PolicyPilot/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
