package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BertoldVdb/PDAltMode/hostcmd"
	"github.com/BertoldVdb/PDAltMode/hostcmd/client"
)

// RemoteFlags select the daemon a command talks to.
type RemoteFlags struct {
	URL    string `name:"url" short:"u" help:"Daemon URL. Empty uses mDNS when enabled in the config, else the configured listen address." env:"PDALTMODE_URL"`
	APIKey string `name:"api-key" help:"API key signing write requests. Defaults to the configured key." env:"PDALTMODE_API_KEY"`
}

func (r *RemoteFlags) client(cli *CLI) (*client.Client, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := cli.Logger(cfg, os.Stderr, "warn"); err != nil {
		return nil, err
	}

	url := r.URL
	if url == "" {
		if cfg.HostCmd.MDNS {
			url, err = client.Discover(context.Background(), cfg.HostCmd.MDNSName)
			if err != nil {
				return nil, fmt.Errorf("failed to discover daemon: %w", err)
			}
		} else {
			url = "http://" + cfg.HostCmd.Listen
		}
	}

	c := client.New(url)

	key := r.APIKey
	if key == "" {
		key = cfg.HostCmd.APIKey
	}
	if key != "" {
		c.SetCredentials(hostcmd.Credentials(key, "cli", time.Now().Add(time.Hour)))
	}
	return c, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

type StatusCmd struct {
	RemoteFlags `embed:""`

	Port int  `arg:"" optional:"" default:"-1" help:"Port to show. All ports are summarized when omitted."`
	JSON bool `name:"json" help:"Print JSON instead of a table."`
}

func (c *StatusCmd) Run(cli *CLI) error {
	cl, err := c.client(cli)
	if err != nil {
		return err
	}

	if c.Port < 0 {
		ports, err := cl.Ports()
		if err != nil {
			return err
		}
		if c.JSON {
			return printJSON(ports)
		}
		fmt.Print(formatPorts(ports))
		return nil
	}

	st, err := cl.Port(c.Port)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(st)
	}
	fmt.Print(formatPort(st))
	return nil
}

type MFAllowCmd struct {
	RemoteFlags `embed:""`

	Port  int    `arg:"" help:"Port number."`
	Value string `arg:"" optional:"" help:"New preference (true or false). Prints the current one when omitted."`
}

func (c *MFAllowCmd) Run(cli *CLI) error {
	cl, err := c.client(cli)
	if err != nil {
		return err
	}

	if c.Value != "" {
		allow, err := strconv.ParseBool(c.Value)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", c.Value, err)
		}
		if err := cl.SetMFAllow(c.Port, allow); err != nil {
			return err
		}
	}

	allow, err := cl.MFAllow(c.Port)
	if err != nil {
		return err
	}
	fmt.Printf("port %d: mfAllow=%v\n", c.Port, allow)
	return nil
}

type ExitCmd struct {
	RemoteFlags `embed:""`

	Port int `arg:"" help:"Port number."`
}

func (c *ExitCmd) Run(cli *CLI) error {
	cl, err := c.client(cli)
	if err != nil {
		return err
	}
	return cl.Exit(c.Port)
}

type DiscoverCmd struct {
	Name string `arg:"" optional:"" help:"Instance name. The first daemon found is used when omitted."`
}

func (c *DiscoverCmd) Run(cli *CLI) error {
	url, err := client.Discover(context.Background(), c.Name)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}
