package reports

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// WriteJSONReport serializes v into workDir and returns the static report
// pointing at it.
func WriteJSONReport(workDir, canonical, name string, v interface{}) (*StaticReport, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report %s/%s: %w", canonical, name, err)
	}

	path := filepath.Join(workDir, canonical+"_"+name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write report %s/%s: %w", canonical, name, err)
	}

	return &StaticReport{
		CanonicalName: canonical,
		FileName:      name,
		Path:          path,
	}, nil
}

// WriteColumnarReport writes columns into workDir as a columnar file and
// returns the static report pointing at it.
func WriteColumnarReport(workDir, canonical, name string, cols []Column) (*StaticReport, error) {
	path := filepath.Join(workDir, canonical+"_"+name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report %s/%s: %w", canonical, name, err)
	}
	defer f.Close()

	if err := WriteColumnar(f, defaultColumnarAlgo, cols); err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report %s/%s: %w", canonical, name, err)
	}

	return &StaticReport{
		CanonicalName: canonical,
		FileName:      name,
		Path:          path,
	}, nil
}
