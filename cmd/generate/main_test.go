package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/internal/config"
)

type GenerateCmdTestSuite struct {
	suite.Suite
	tempDir string
}

func (suite *GenerateCmdTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "generate-cmd-test")
	suite.Require().NoError(err)
	suite.tempDir = tempDir

	// Generated files land relative to the working directory
	err = os.Chdir(tempDir)
	suite.Require().NoError(err)
}

func (suite *GenerateCmdTestSuite) TearDownTest() {
	err := os.RemoveAll(suite.tempDir)
	suite.Require().NoError(err)
}

func (suite *GenerateCmdTestSuite) TestSchemaGeneration() {
	main()

	configDir := filepath.Join(suite.tempDir, "config")
	suite.True(dirExists(configDir), "Config directory should exist")

	deploySchemaPath := filepath.Join(configDir, "deploy-config.json")
	suite.True(fileExists(deploySchemaPath), "Deployment schema should exist")

	schemaContent, err := os.ReadFile(deploySchemaPath)
	suite.Require().NoError(err)
	suite.NotEmpty(schemaContent, "Deployment schema should not be empty")

	replaySchemaPath := filepath.Join(configDir, "replay-engine-v1-config.json")
	suite.True(fileExists(replaySchemaPath), "Replay schema should exist")

	replayContent, err := os.ReadFile(replaySchemaPath)
	suite.Require().NoError(err)
	suite.NotEmpty(replayContent, "Replay schema should not be empty")
}

func (suite *GenerateCmdTestSuite) TestSampleConfigGeneration() {
	main()

	samplePath := filepath.Join(suite.tempDir, "config", "deploy-config.yaml")
	suite.True(fileExists(samplePath), "Sample config should exist")

	content, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.NotEmpty(content, "Sample config should not be empty")

	suite.Contains(string(content), "# yaml-language-server: $schema=deploy-config.json")
	suite.Contains(string(content), "BTCUSDT")
	suite.Contains(string(content), "YOUR_API_KEY")
}

func (suite *GenerateCmdTestSuite) TestSampleConfigNotOverwritten() {
	main()

	samplePath := filepath.Join(suite.tempDir, "config", "deploy-config.yaml")
	originalContent, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)

	// A second run must leave the sample untouched
	main()

	newContent, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.Equal(string(originalContent), string(newContent), "Sample config should not be overwritten")
}

func (suite *GenerateCmdTestSuite) TestGenerateSchemaFile() {
	schemaPath := filepath.Join(suite.tempDir, "test-schema", "schema.json")

	err := generateSchemaFile(`{"type": "object"}`, schemaPath)
	suite.Require().NoError(err)

	suite.True(fileExists(schemaPath), "Schema file should exist")

	content, err := os.ReadFile(schemaPath)
	suite.Require().NoError(err)
	suite.Equal(`{"type": "object"}`, string(content))
}

func (suite *GenerateCmdTestSuite) TestGenerateSchemaFileInvalidPath() {
	// A regular file in the directory position makes MkdirAll fail
	blocker := filepath.Join(suite.tempDir, "blocker")
	suite.Require().NoError(os.WriteFile(blocker, []byte("x"), 0644))

	err := generateSchemaFile("{}", filepath.Join(blocker, "schema.json"))
	suite.Error(err, "Should return error for invalid path")
	suite.Contains(err.Error(), "failed to", "Error should contain descriptive message")
}

func (suite *GenerateCmdTestSuite) TestGenerateSampleConfig() {
	samplePath := filepath.Join(suite.tempDir, "sample-config.yaml")
	schemaName := "test-schema.json"

	err := generateSampleConfig(config.Sample(), samplePath, schemaName)
	suite.Require().NoError(err)

	suite.True(fileExists(samplePath), "Sample config file should exist")

	content, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.Contains(string(content), "# yaml-language-server: $schema="+schemaName)
}

func (suite *GenerateCmdTestSuite) TestGenerateSampleConfigAlreadyExists() {
	samplePath := filepath.Join(suite.tempDir, "existing-config.yaml")
	schemaName := "test-schema.json"

	originalContent := []byte("existing content")
	err := os.WriteFile(samplePath, originalContent, 0644)
	suite.Require().NoError(err)

	err = generateSampleConfig(config.Sample(), samplePath, schemaName)
	suite.Require().NoError(err)

	content, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.Equal(string(originalContent), string(content), "Existing file should not be overwritten")
}

func (suite *GenerateCmdTestSuite) TestValidatePaths() {
	err := validatePaths("/some/path/schema.json", "/some/path/config.yaml")
	suite.NoError(err, "Valid paths should not return error")

	err = validatePaths("", "/some/path/config.yaml")
	suite.Error(err, "Empty schema path should return error")
	suite.Contains(err.Error(), "schema path cannot be empty")

	err = validatePaths("/some/path/schema.json", "")
	suite.Error(err, "Empty sample config path should return error")
	suite.Contains(err.Error(), "sample config path cannot be empty")

	err = validatePaths("", "")
	suite.Error(err, "Both empty paths should return error")
}

func (suite *GenerateCmdTestSuite) TestValidateSchemaName() {
	err := validateSchemaName("schema.json")
	suite.NoError(err, "Valid schema name should not return error")

	err = validateSchemaName("my-schema-file.json")
	suite.NoError(err, "Valid schema name with dashes should not return error")

	err = validateSchemaName("")
	suite.Error(err, "Empty schema name should return error")
	suite.Contains(err.Error(), "schema name cannot be empty")

	err = validateSchemaName("schema.txt")
	suite.Error(err, "Schema name without .json should return error")
	suite.Contains(err.Error(), "must have .json extension")

	err = validateSchemaName("schema")
	suite.Error(err, "Schema name without extension should return error")
}

func (suite *GenerateCmdTestSuite) TestGetSchemaReference() {
	ref := getSchemaReference("test-schema.json")
	suite.Equal("# yaml-language-server: $schema=test-schema.json\n", ref)

	ref = getSchemaReference("another.json")
	suite.Equal("# yaml-language-server: $schema=another.json\n", ref)

	ref = getSchemaReference("")
	suite.Equal("# yaml-language-server: $schema=\n", ref)
}

// Helper functions
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return !os.IsNotExist(err) && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return !os.IsNotExist(err) && !info.IsDir()
}

func TestGenerateCmdSuite(t *testing.T) {
	suite.Run(t, new(GenerateCmdTestSuite))
}
