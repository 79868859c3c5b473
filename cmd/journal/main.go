package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/meridian-lab/meridian-trading/internal/config"
	"github.com/meridian-lab/meridian-trading/internal/journal"
	"github.com/meridian-lab/meridian-trading/internal/logger"
)

func main() {
	journalFlag := flag.String("journal", config.DefaultJournalPath, "Path to the run journal DuckDB file")
	flag.Parse()

	if _, err := os.Stat(*journalFlag); os.IsNotExist(err) {
		fmt.Printf("Error: journal file %s does not exist\n", *journalFlag)
		flag.Usage()
		os.Exit(1)
	}

	// The TUI owns the terminal, keep the logger quiet
	j, err := journal.NewJournal(*journalFlag, logger.NewNopLogger())
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	p := tea.NewProgram(NewModel(j, *journalFlag), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Failed to run journal browser: %v", err)
	}
}
