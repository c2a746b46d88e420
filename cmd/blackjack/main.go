package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BiroNora/BlackJack-01/pkg/client"
	"github.com/BiroNora/BlackJack-01/pkg/ui"
)

func main() {
	flags := client.RegisterClientFlags()
	flag.Parse()

	cfg, err := client.LoadConfig("blackjack", flags)
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	logBackend, err := client.SetupLogging(cfg, "blackjack")
	if err != nil {
		fmt.Printf("Logging error: %v\n", err)
		os.Exit(1)
	}

	log := logBackend.Logger("BlackjackClient")
	log.Infof("Using server address: %s", cfg.ServerURL)

	identity, err := client.LoadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		log.Errorf("Failed to load client identity: %v", err)
		os.Exit(1)
	}
	log.Infof("Using client ID: %s", identity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := client.NewGateway(cfg.ServerURL, logBackend.Logger("GATEWAY"))
	if err != nil {
		log.Errorf("Failed to create gateway: %v", err)
		os.Exit(1)
	}

	machine := client.NewMachine(ctx, gw, identity, cfg.DataDir, cfg.Timings, logBackend.Logger("MACHINE"))
	defer machine.Close()
	machine.Start()

	dispatcher := ui.NewCommandDispatcher(machine)
	model := ui.NewModel(ctx, dispatcher)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Errorf("UI error: %v", err)
		os.Exit(1)
	}
}
