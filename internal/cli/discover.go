package cli

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/EffortlessMetrics/buildfix/internal/receipt"
)

// DiscoverReceipts walks root/artifactsDir, one subdirectory per
// sensor, and loads every ".json" file found as a receipt. This is the
// disk-discovery half of receipt ingestion spec.md calls out as an
// external collaborator (§1 Non-goals; SPEC_FULL.md §2 item 10):
// internal/receipt only knows how to decode one reader's bytes, not
// where receipts live on disk.
func DiscoverReceipts(root, artifactsDir string) (receipt.Set, error) {
	base := filepath.Join(root, artifactsDir)
	sensorDirs, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return receipt.NewSet(nil, nil, nil), nil
	}
	if err != nil {
		return receipt.Set{}, err
	}

	var findings []receipt.Finding
	var inputs []receipt.Input
	var failed []receipt.InputFailure

	for _, sensorDir := range sensorDirs {
		if !sensorDir.IsDir() {
			continue
		}
		sensor := sensorDir.Name()
		sensorPath := filepath.Join(base, sensor)
		entries, err := os.ReadDir(sensorPath)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			fullPath := filepath.Join(sensorPath, name)
			relPath := filepath.ToSlash(filepath.Join(artifactsDir, sensor, name))
			file, err := os.Open(fullPath)
			if err != nil {
				failed = append(failed, receipt.InputFailure{Path: relPath, Reason: "io." + err.Error()})
				continue
			}
			fs, input, dropped, failure := receipt.Load(file, relPath, sensor)
			file.Close()
			if failure != nil {
				failed = append(failed, *failure)
				continue
			}
			failed = append(failed, dropped...)
			findings = append(findings, fs...)
			inputs = append(inputs, input)
		}
	}

	return receipt.NewSet(findings, inputs, failed), nil
}
