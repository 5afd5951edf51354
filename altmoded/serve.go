package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/board"
	"github.com/BertoldVdb/PDAltMode/config"
	"github.com/BertoldVdb/PDAltMode/hostcmd"
	"github.com/BertoldVdb/PDAltMode/hwmux"
	"github.com/BertoldVdb/PDAltMode/logging"
	"github.com/BertoldVdb/PDAltMode/partner"
	"github.com/BertoldVdb/PDAltMode/pdtask"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

type ServeCmd struct {
	Listen    string        `name:"listen" help:"Host command listen address. Overrides the config file."`
	Board     string        `name:"board" help:"Board description (.yaml or .dtb). Overrides the config file."`
	Partner   []string      `name:"partner" help:"Attach a simulated partner to a port." placeholder:"PORT=PROFILE"`
	MuxSettle time.Duration `name:"mux-settle" help:"Time the mux needs after entering safe state." default:"10ms"`
}

// stack is an engine with one task per port.
type stack struct {
	engine *altmode.Engine
	pe     *partner.Loopback
	tasks  []*pdtask.Task
}

func newStack(cfg config.Config, brd board.Board, mux *hwmux.Ports, settle time.Duration, logger *slog.Logger) (*stack, error) {
	version, err := cfg.Engine.Version()
	if err != nil {
		return nil, err
	}

	s := &stack{pe: partner.NewLoopback()}

	s.engine, err = altmode.New(altmode.Options{
		Ports:         brd.PortConfigs(),
		PolicyEngine:  s.pe,
		Mux:           mux,
		HPD:           mux,
		Logger:        logger,
		SVDMVersion:   version,
		APModeEntry:   cfg.Engine.APModeEntry,
		DiscoverCable: cfg.Engine.DiscoverCable && brd.DiscoverCable,
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < s.engine.Ports(); i++ {
		task, err := pdtask.New(s.engine, s.pe, i, pdtask.Options{
			MuxSettle: settle,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		s.tasks = append(s.tasks, task)
	}

	s.pe.Deliver = func(port int, scope pdvdm.Scope, payload []uint32) {
		if err := s.tasks[port].ReceiveVDM(scope, payload); err != nil {
			logger.Debug("Dropped VDM", "port", port, "error", err)
		}
	}
	return s, nil
}

// run starts every task and returns a function waiting for them to stop.
func (s *stack) run(ctx context.Context) func() {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(task *pdtask.Task) {
			defer wg.Done()
			task.Run(ctx)
		}(task)
	}
	return wg.Wait
}

// attach connects the named partner profile to port as a DFP.
func (s *stack) attach(port int, profile string) error {
	if port < 0 || port >= len(s.tasks) {
		return altmode.ErrPortRange{Port: port}
	}
	if err := s.pe.AttachProfile(port, profile); err != nil {
		return err
	}
	return s.tasks[port].Connect(altmode.PolarityCC1, altmode.RoleDFP)
}

func parsePartner(arg string) (int, string, error) {
	portStr, profile, ok := strings.Cut(arg, "=")
	if !ok {
		return 0, "", fmt.Errorf("partner %q is not PORT=PROFILE", arg)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, "", fmt.Errorf("partner %q: invalid port: %w", arg, err)
	}
	return port, profile, nil
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := cli.Logger(cfg, os.Stdout, "info")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	boardPath := cfg.Board.Path
	if c.Board != "" {
		boardPath = c.Board
	}
	brd, err := board.Load(boardPath)
	if err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}
	logger.Info("Board loaded", "name", brd.Name, "ports", len(brd.Ports))

	mux, err := hwmux.OpenPorts(brd.MuxPaths(), logging.Printf(logger.With(logging.ComponentKey, "hwmux")))
	if err != nil {
		return fmt.Errorf("failed to open mux: %w", err)
	}
	defer mux.Close()

	s, err := newStack(cfg, brd, mux, c.MuxSettle, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	wait := s.run(ctx)
	defer func() {
		cancel()
		wait()
	}()

	for _, arg := range c.Partner {
		port, profile, err := parsePartner(arg)
		if err != nil {
			return err
		}
		if err := s.attach(port, profile); err != nil {
			return fmt.Errorf("failed to attach partner: %w", err)
		}
		logger.Info("Simulated partner attached", "port", port, "profile", profile)
	}

	listen := cfg.HostCmd.Listen
	if c.Listen != "" {
		listen = c.Listen
	}

	if key := cfg.HostCmd.APIKey; key != "" {
		user, pass := hostcmd.Credentials(key, "altmoded", time.Now().AddDate(1, 0, 0))
		logger.Info("Host command credentials", "user", user, "password", pass)
	}

	if cfg.HostCmd.MDNS {
		port, err := listenPort(listen)
		if err != nil {
			return fmt.Errorf("invalid listen address: %w", err)
		}
		adv := hostcmd.NewAdvertiser(cfg.HostCmd.MDNSName, port, len(s.tasks))
		if err := adv.Start(nil); err != nil {
			return fmt.Errorf("failed to advertise: %w", err)
		}
		defer adv.Stop()
	}

	ports := make([]hostcmd.Port, len(s.tasks))
	for i, task := range s.tasks {
		ports[i] = task
	}

	srv := hostcmd.New(s.engine, ports, hostcmd.Options{
		APIKey: cfg.HostCmd.APIKey,
		LogOut: logging.Printf(logger.With(logging.ComponentKey, "hostcmd")),
	})

	logger.Info("Serving host commands", "addr", listen)
	return srv.ListenAndServe(ctx, listen)
}
