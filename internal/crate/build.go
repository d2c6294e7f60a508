package crate

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/rocrate"
)

// ErrInvalidTask is returned when a task lacks the data a crate needs.
var ErrInvalidTask = errors.New("invalid task")

// SeedWorkflow pre-populates the graph with the workflow entity that
// UpdateMainEntity expects. Entities of an existing workflow crate graph,
// if given, are imported first; its descriptor and root are skipped.
func (a *Assembler) SeedWorkflow(from *rocrate.Graph) {
	if from != nil {
		for _, e := range from.Entities() {
			if e.Kind == rocrate.KindMetadata || e.Kind == rocrate.KindRoot {
				continue
			}
			a.graph.Put(e)
		}
	}

	if a.graph.Has(a.WorkflowURL()) {
		return
	}
	workflow := rocrate.NewEntity(rocrate.KindWorkflow, a.WorkflowURL(), "Dataset")
	a.graph.Put(workflow)
}

// Build runs the whole construction protocol for task and returns the
// finished archive. The Assembler is reset afterwards whether or not the
// build succeeded.
func (a *Assembler) Build(task Task, seed *rocrate.Graph) (*rocrate.Archive, error) {
	if task.ID == "" || task.QueryFile == "" {
		return nil, fmt.Errorf("%w: task id and query file are required", ErrInvalidTask)
	}

	a.Initialize()
	a.SeedWorkflow(seed)
	a.AddLicense()
	if err := a.UpdateMainEntity(); err != nil {
		a.Finalize()
		return nil, err
	}
	a.AddCreateAction(task)
	if err := a.AddAgent(); err != nil {
		a.Finalize()
		return nil, err
	}

	return &rocrate.Archive{
		Graph: a.Finalize(),
		Files: []rocrate.File{{Name: task.QueryFile, Data: task.Query}},
	}, nil
}
