// Interactive mode for local testing: ingest plain-text files, then chat
// with the corpus from the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	groundrag "github.com/modalmesh/groundrag"
	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/config"
	"github.com/modalmesh/groundrag/pkg/ingest"
	"github.com/modalmesh/groundrag/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	flag.Parse()

	if err := run(*configPath, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string, files []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	agent, cleanup, err := groundrag.NewFromConfig(ctx, cfg, ingest.PlainTextAnalyzer{}, log)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		doc := chunk.SourceDocument{
			ID:        name,
			Title:     name,
			Modality:  chunk.ModalityDocument,
			OriginURI: path,
		}
		report, err := agent.Ingest(ctx, doc, []ingest.File{{Name: name, MIME: "text/plain", Data: data}})
		if err != nil {
			return err
		}
		fmt.Printf("ingested %s (%d chunks)\n", name, report.Chunks)
	}

	sessionID, err := agent.StartSession(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Multimodal grounded RAG — interactive mode")
	fmt.Println("Type 'quit' or 'exit' to end the session.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" || input == "q" {
			break
		}

		answer, err := agent.Query(ctx, sessionID, input)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Printf("\nAgent: %s\n", answer.Answer)
		if len(answer.Citations) > 0 {
			fmt.Println("\nSources:")
			for i, c := range answer.Citations {
				fmt.Printf("  %d. %s (%s)\n", i+1, c.DocumentTitle, c.Locator)
			}
		}
		if !answer.Grounded {
			fmt.Println("\n(answer was not grounded in retrieved evidence)")
		}
	}
	return scanner.Err()
}
