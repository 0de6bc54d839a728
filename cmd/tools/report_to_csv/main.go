// Command report_to_csv converts a columnar timeline report into CSV for
// spreadsheet inspection. It reads either a local .mlcr file or a report
// object straight out of cold storage.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/reports"
)

func main() {
	// Command line flags
	input := flag.String("input", "", "Local columnar report file")
	dataDir := flag.String("data-dir", "./data", "Object store root (used with -bucket/-key)")
	bucket := flag.String("bucket", "combatlog", "Bucket holding the report object")
	key := flag.String("key", "", "Report object key (form=Report/partition=.../canonical=.../name.mlcr)")
	output := flag.String("output", "./data/csv", "Output CSV directory")
	timestamps := flag.Bool("timestamps", true, "Render the tm column as RFC3339")

	flag.Parse()

	if *input == "" && *key == "" {
		log.Fatal("Error: either -input or -key is required")
	}

	var (
		r    io.ReadCloser
		name string
		err  error
	)
	if *input != "" {
		r, err = os.Open(*input)
		name = filepath.Base(*input)
	} else {
		r, name, err = openStored(*dataDir, *bucket, *key)
	}
	if err != nil {
		log.Fatalf("Error opening report: %v\n", err)
	}
	defer func() { _ = r.Close() }()

	cols, err := reports.ReadColumnar(r)
	if err != nil {
		log.Fatalf("Error reading report: %v\n", err)
	}
	if len(cols) == 0 {
		log.Printf("Warning: report has no columns\n")
		return
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("Error creating output directory: %v\n", err)
	}

	outputFile := filepath.Join(*output, strings.TrimSuffix(name, ".mlcr")+".csv")
	if err := exportToCSV(outputFile, cols, *timestamps); err != nil {
		log.Fatalf("Error exporting to CSV: %v\n", err)
	}

	fmt.Printf("Successfully exported %d columns to: %s\n", len(cols), outputFile)
}

// openStored fetches the report object through the filesystem backend.
func openStored(dataDir, bucket, key string) (io.ReadCloser, string, error) {
	store, err := objstore.NewFilesystemStore(dataDir, logging.NewDefault())
	if err != nil {
		return nil, "", err
	}

	rc, err := store.Get(context.Background(), bucket, key)
	if err != nil {
		return nil, "", err
	}

	parts := strings.Split(key, "/")
	return rc, parts[len(parts)-1], nil
}

func exportToCSV(filename string, cols []reports.Column, renderTimestamps bool) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := make([]string, 0, len(cols))
	rows := 0
	for _, c := range cols {
		header = append(header, c.Name)
		if n := colRows(&c); n > rows {
			rows = n
		}
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := 0; i < rows; i++ {
		row := make([]string, 0, len(cols))
		for _, c := range cols {
			row = append(row, cellValue(&c, i, renderTimestamps))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

func colRows(c *reports.Column) int {
	switch c.Type {
	case reports.ColumnInt64:
		return len(c.Ints)
	case reports.ColumnFloat64:
		return len(c.Floats)
	case reports.ColumnString:
		return len(c.Strings)
	}
	return 0
}

func cellValue(c *reports.Column, i int, renderTimestamps bool) string {
	switch c.Type {
	case reports.ColumnInt64:
		if i >= len(c.Ints) {
			return ""
		}
		// Timeline time columns hold unix milliseconds.
		if renderTimestamps && c.Name == "tm" {
			return time.UnixMilli(c.Ints[i]).UTC().Format(time.RFC3339)
		}
		return strconv.FormatInt(c.Ints[i], 10)
	case reports.ColumnFloat64:
		if i >= len(c.Floats) {
			return ""
		}
		return strconv.FormatFloat(c.Floats[i], 'f', -1, 64)
	case reports.ColumnString:
		if i >= len(c.Strings) {
			return ""
		}
		return c.Strings[i]
	}
	return ""
}
