package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/board"
	"github.com/BertoldVdb/PDAltMode/hwmux"
	"github.com/BertoldVdb/PDAltMode/logging"
	"github.com/BertoldVdb/PDAltMode/partner"
)

type SimulateCmd struct {
	Profile   string        `arg:"" help:"Partner profile (${profiles})."`
	Flip      bool          `name:"flip" help:"Connect with CC2 polarity."`
	MFAllow   bool          `name:"mf-allow" help:"Prefer DisplayPort multi-function pin assignments." default:"true" negatable:""`
	MuxSettle time.Duration `name:"mux-settle" help:"Simulated mux settle time." default:"1ms"`
	Timeout   time.Duration `name:"timeout" help:"How long to wait for mode entry." default:"2s"`
	JSON      bool          `name:"json" help:"Print JSON instead of a table."`
}

func (c *SimulateCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := cli.Logger(cfg, os.Stderr, "warn")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	brd := board.Default()
	brd.Ports[0].MFAllow = c.MFAllow

	sim := hwmux.NewSim()
	mux := hwmux.NewPorts(logging.Printf(logger.With(logging.ComponentKey, "hwmux")), sim)

	s, err := newStack(cfg, brd, mux, c.MuxSettle, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	wait := s.run(ctx)
	defer func() {
		cancel()
		wait()
	}()

	if err := s.pe.AttachProfile(0, c.Profile); err != nil {
		return err
	}
	polarity := altmode.PolarityCC1
	if c.Flip {
		polarity = altmode.PolarityCC2
	}
	if err := s.tasks[0].Connect(polarity, altmode.RoleDFP); err != nil {
		return err
	}

	st, err := settle(ctx, s.tasks[0].Snapshot)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(struct {
			Status altmode.PortStatus `json:"status"`
			Mux    []string           `json:"mux"`
		}{st, sim.Events()})
	}

	fmt.Print(formatPort(st))
	fmt.Println(titleStyle.Render("Mux"))
	for _, ev := range sim.Events() {
		fmt.Println("  " + ev)
	}
	return nil
}

// settle polls snapshot until the port entered a mode or stopped changing.
func settle(ctx context.Context, snapshot func(context.Context) (altmode.PortStatus, error)) (altmode.PortStatus, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	var last altmode.PortStatus
	var lastKey string
	stable := 0

	for {
		st, err := snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil && lastKey != "" {
				return last, nil
			}
			return st, err
		}

		raw, err := json.Marshal(st)
		if err != nil {
			return st, err
		}
		key := string(raw)
		if key == lastKey {
			stable++
		} else {
			stable = 0
		}
		last, lastKey = st, key

		if st.DFPActive && !st.MuxWait && stable >= 2 {
			return st, nil
		}
		if stable >= 20 {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}

func profileList() string {
	return strings.Join(partner.Profiles(), ", ")
}
