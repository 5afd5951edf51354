// altmoded runs the USB-PD alternate mode engine of a board and serves its
// host command interface.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/BertoldVdb/PDAltMode/config"
	"github.com/BertoldVdb/PDAltMode/logging"
)

type CLI struct {
	Config string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log    string `name:"log" help:"Log spec (e.g., 'info,tbt=debug')." env:"PDALTMODE_LOG"`

	Serve    ServeCmd    `cmd:"" help:"Run the engine and the host command server."`
	Status   StatusCmd   `cmd:"" help:"Show the ports of a running daemon."`
	MFAllow  MFAllowCmd  `cmd:"" name:"mfallow" help:"Read or set the DisplayPort multi-function preference."`
	Exit     ExitCmd     `cmd:"" help:"Ask a port to leave its alternate modes."`
	Discover DiscoverCmd `cmd:"" help:"Find daemons on the local network."`
	Simulate SimulateCmd `cmd:"" help:"Run a simulated partner against the engine and print the result."`
}

func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// Logger builds the logger for cfg. def is used when neither --log, the
// environment nor the config file set a level.
func (c *CLI) Logger(cfg config.Config, out io.Writer, def string) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	configSpec := cfg.Logging.ToSpec()
	if configSpec == "" {
		configSpec = def
	}

	logger, err := logging.New(logging.Options{
		CLISpec:    c.Log,
		ConfigSpec: configSpec,
		Format:     format,
		Output:     out,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func main() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("altmoded"),
		kong.Description("USB Power Delivery alternate mode daemon."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"profiles":            profileList(),
		},
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
