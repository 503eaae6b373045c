package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

// formatFor picks the table format from an explicit flag, falling back to
// the file extension.
func formatFor(flag, path string) (services.Format, error) {
	if strings.TrimSpace(flag) != "" {
		f, err := services.ParseFormat(flag)
		if err != nil {
			return "", withCode(exitUsage, err)
		}
		return f, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return services.FormatXLSX, nil
	}
	return services.FormatCSV, nil
}

func readTable(path string, format services.Format) (services.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return services.Table{}, withCode(exitUsage, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()

	table, err := services.DecodeTable(f, format)
	if err != nil {
		return services.Table{}, withCode(exitValidation, fmt.Errorf("decode %s: %w", path, err))
	}
	return table, nil
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("create %s: %w", path, err))
	}
	return f, nil
}

func splitIDs(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
