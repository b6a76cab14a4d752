package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"reelsmith/demo/tui"
)

func main() {
	// Load environment
	_ = godotenv.Load()

	apiURL := flag.String("url", "http://localhost:8080", "API server URL")
	userID := flag.String("user", "demo-user", "User id sent as X-User-ID")
	sessionID := flag.String("session", "", "Session id to watch")
	flag.Parse()

	if *sessionID == "" {
		fmt.Println("usage: demo -session <session-id> [-url ...] [-user ...]")
		os.Exit(1)
	}

	m := tui.NewModel(*apiURL, *userID, *sessionID)
	program := tea.NewProgram(m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
