// Package main is the raspacar command: the car server, the terminal joystick
// and the motor self test.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

// Globals are flags shared by every subcommand.
type Globals struct {
	Debug bool `help:"Enable verbose debug logging."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" default:"1" help:"Run the car server (motors, camera, web page)."`
	Drive  DriveCmd  `cmd:"" help:"Drive a car from the terminal."`
	Motors MotorsCmd `cmd:"" help:"Motor utilities."`
}

// main is the entrypoint for raspacar.
func main() {
	yamlPaths, tomlPaths := clientConfigPaths()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("raspacar"),
		kong.Description("Raspberry Pi robot car with a virtual joystick."),
		kong.UsageOnError(),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		logFatal(err)
	}
}

// clientConfigPaths returns the per-user defaults files, YAML then TOML.
func clientConfigPaths() ([]string, []string) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, nil
	}
	base := filepath.Join(dir, "raspacar")
	return []string{filepath.Join(base, "drive.yaml"), filepath.Join(base, "drive.yml")},
		[]string{filepath.Join(base, "drive.toml")}
}

// logFatal prints and exits for startup failures.
func logFatal(err error) {
	log.Printf("fatal: %v", err)
	os.Exit(1)
}
