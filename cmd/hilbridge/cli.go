package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/skyhil/hilbridge/internal/session"
)

const usage = `usage:
  hilbridge run [configDir] [lat,lon,alt]   run the bridge with a hovering demo vehicle
  hilbridge find-pixhawk                    print the first attached PX4 serial device
  hilbridge version                         print the version`

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch command {
	case "run":
		err = run(args)
	case "find-pixhawk", "findpixhawk":
		err = findPixhawk()
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", command, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func findPixhawk() error {
	port := session.FindPixhawk()
	if port == "" {
		return fmt.Errorf("no PX4 autopilot found on any serial port")
	}
	fmt.Println(port)
	return nil
}
