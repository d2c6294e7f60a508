package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/rocrate"
)

// loadSeed reads a workflow crate from a zip or a bare metadata document.
// An empty path means no seed.
func loadSeed(path string) (*rocrate.Graph, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed crate: %w", err)
	}

	var graph *rocrate.Graph
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		archive, err := rocrate.ReadZip(data)
		if err != nil {
			return nil, err
		}
		graph = archive.Graph
	} else {
		graph, err = rocrate.ParseMetadata(data)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("[Seed] Loaded workflow crate", "path", path, "entities", graph.Len())
	return graph, nil
}
