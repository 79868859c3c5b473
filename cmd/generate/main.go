package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	engine "github.com/meridian-lab/meridian-trading/internal/backtest/engine/engine_v1"
	"github.com/meridian-lab/meridian-trading/internal/config"
)

func main() {
	// Deployment config schema and sample
	deploySchemaName := "deploy-config.json"
	deploySchemaPath := filepath.Join("./config", deploySchemaName)
	deploySamplePath := filepath.Join("./config", "deploy-config.yaml")

	if err := validateSchemaName(deploySchemaName); err != nil {
		log.Fatalf("Invalid schema name: %v", err)
	}
	if err := validatePaths(deploySchemaPath, deploySamplePath); err != nil {
		log.Fatalf("Invalid output paths: %v", err)
	}

	deploySchema, err := config.Schema()
	if err != nil {
		log.Fatalf("Failed to generate deployment schema: %v", err)
	}
	if err := generateSchemaFile(deploySchema, deploySchemaPath); err != nil {
		log.Fatalf("Failed to write deployment schema: %v", err)
	}
	log.Printf("Schema successfully generated at %s", deploySchemaPath)

	if err := generateSampleConfig(config.Sample(), deploySamplePath, deploySchemaName); err != nil {
		log.Fatalf("Failed to write sample config: %v", err)
	}
	log.Printf("Sample config available at %s", deploySamplePath)

	// Replay config schema
	replaySchemaName := "replay-engine-v1-config.json"
	replaySchemaPath := filepath.Join("./config", replaySchemaName)

	replaySchema, err := (&engine.ReplayConfig{}).GenerateSchemaJSON()
	if err != nil {
		log.Fatalf("Failed to generate replay schema: %v", err)
	}
	if err := generateSchemaFile(replaySchema, replaySchemaPath); err != nil {
		log.Fatalf("Failed to write replay schema: %v", err)
	}
	log.Printf("Schema successfully generated at %s", replaySchemaPath)
}

// generateSchemaFile writes schema JSON to schemaPath, creating parent
// directories as needed.
func generateSchemaFile(schemaJSON string, schemaPath string) error {
	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	return nil
}

// generateSampleConfig writes a sample YAML next to its schema unless
// one already exists. A yaml-language-server header links the two.
func generateSampleConfig(sample any, samplePath string, schemaName string) error {
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat sample config: %w", err)
	}

	yamlBytes, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(samplePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	yamlBytes = append([]byte(getSchemaReference(schemaName)), yamlBytes...)

	if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}

	return nil
}

func validatePaths(schemaPath string, samplePath string) error {
	if schemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}
	if samplePath == "" {
		return fmt.Errorf("sample config path cannot be empty")
	}

	return nil
}

func validateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	if !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("schema name must have .json extension")
	}

	return nil
}

func getSchemaReference(schemaName string) string {
	return "# yaml-language-server: $schema=" + schemaName + "\n"
}
