package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// manifestFileName is the declared schema file every graph and telemetry
// archive carries at its root.
const manifestFileName = "manifest.yaml"

// graphFileDecl declares one CSV file of vertices or edges: its label, the
// file path relative to the archive root, and the columns the file must
// carry.
type graphFileDecl struct {
	Label   string   `yaml:"label"`
	File    string   `yaml:"file"`
	Columns []string `yaml:"columns"`
}

// graphManifest is the schema manifest a graph archive declares.
type graphManifest struct {
	Name         string          `yaml:"name,omitempty"`
	DropExisting bool            `yaml:"drop_existing,omitempty"`
	Vertices     []graphFileDecl `yaml:"vertices"`
	Edges        []graphFileDecl `yaml:"edges"`
}

// telemetryContainerDecl declares one telemetry container: its CSV file,
// partition key, and which columns to coerce to numbers.
type telemetryContainerDecl struct {
	Name           string   `yaml:"name"`
	File           string   `yaml:"file"`
	PartitionKey   string   `yaml:"partition_key,omitempty"`
	NumericColumns []string `yaml:"numeric_columns,omitempty"`
}

// telemetryManifest is the schema a telemetry archive declares.
type telemetryManifest struct {
	Name       string                   `yaml:"name,omitempty"`
	Containers []telemetryContainerDecl `yaml:"containers"`
}

// docManifest is the optional manifest a runbooks/tickets/prompts archive
// may carry, declaring only the scenario name.
type docManifest struct {
	Name string `yaml:"name,omitempty"`
}

// loadManifest parses dir/manifest.yaml into out. Missing or unparseable
// manifests fail early — before any resource is touched.
func loadManifest(dir string, out any) error {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: archive has no %s", ErrValidation, manifestFileName)
		}
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, manifestFileName, err)
	}
	return nil
}

// loadOptionalManifest is loadManifest for kinds where the manifest only
// carries a name; a missing file yields an empty manifest.
func loadOptionalManifest(dir string) (docManifest, error) {
	var m docManifest
	raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %s: %v", ErrValidation, manifestFileName, err)
	}
	return m, nil
}

// validateDecl checks that a declared CSV exists under dir and carries
// every declared column, returning the parsed header and rows. The whole
// file is read here: validation and parsing share one pass so a
// half-ingested archive can never stem from a file that was readable
// during validation and gone at ingest time.
func validateDecl(dir string, decl graphFileDecl) ([]string, [][]string, error) {
	if decl.File == "" {
		return nil, nil, fmt.Errorf("%w: declaration %q has no file", ErrValidation, decl.Label)
	}
	return readDeclaredCSV(dir, decl.File, decl.Columns)
}

func readDeclaredCSV(dir, file string, requiredColumns []string) ([]string, [][]string, error) {
	f, err := os.Open(filepath.Join(dir, filepath.Clean(file)))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: referenced file %s is missing from the archive", ErrValidation, file)
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	header, rows, err := readCSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrValidation, file, err)
	}
	for _, col := range requiredColumns {
		if !contains(header, col) {
			return nil, nil, fmt.Errorf("%w: %s is missing declared column %q", ErrValidation, file, col)
		}
	}
	return header, rows, nil
}

func readCSV(r io.Reader) (header []string, rows [][]string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty CSV")
	}
	return all[0], all[1:], nil
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
