package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Setup       SetupCommand       `command:"setup" description:"Edit the session configuration"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Record robot state and drive the arm from the keyboard"`
	Info        InfoCommand        `command:"info" description:"Show robot and program state from the dashboard server"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "urteleop - keyboard teleoperation and state recording for Universal Robots arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
