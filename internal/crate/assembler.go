package crate

import (
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/rocrate"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrMainEntityMissing is returned when the workflow entity has not been
// seeded before the main entity is updated.
var ErrMainEntityMissing = errors.New("main entity missing")

// Assembler builds the provenance graph for one task at a time.
//
// Construction steps are meant to run in order: Initialize, AddLicense,
// UpdateMainEntity, AddCreateAction, AddAgent. Finalize hands the graph to
// the caller and starts a fresh one, so the same Assembler can serve the
// next task. An Assembler must not be used from more than one goroutine.
type Assembler struct {
	opts Options

	now          func() time.Time
	newActionID  func() string
	newProjectID func() (string, error)

	graph     *rocrate.Graph
	projectID string
}

// NewAssembler creates an Assembler with an initialized, empty graph.
func NewAssembler(opts Options) *Assembler {
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	a := &Assembler{
		opts: opts,
		now:  time.Now,
		newActionID: func() string {
			return "#query-" + uuid.NewString()
		},
		newProjectID: func() (string, error) {
			id, err := gonanoid.New()
			if err != nil {
				return "", err
			}
			return "#project-" + id, nil
		},
	}
	a.reset()
	return a
}

// WorkflowURL returns the id the seeded workflow entity must carry.
func (a *Assembler) WorkflowURL() string {
	return a.opts.Workflow.URL()
}

// Initialize points the root entity at the configured profile and stamps
// it with the current time.
func (a *Assembler) Initialize() {
	profile := rocrate.NewEntity(rocrate.KindProfile, a.opts.Profile, "CreativeWork", "Profile")
	profile.Set("name", "Trusted Workflow Run Crate profile")
	a.graph.Put(profile)

	root := a.graph.Root()
	root.Set("conformsTo", profile.Ref())
	root.Set("datePublished", a.now().UTC().Format(time.RFC3339Nano))
	a.graph.Put(root)
}

// AddLicense attaches the configured license to the root entity. It does
// nothing when no license URI is configured.
func (a *Assembler) AddLicense() {
	if a.opts.License.URI == "" {
		return
	}

	license := rocrate.NewEntity(rocrate.KindLicense, a.opts.License.URI, "CreativeWork")
	for k, v := range a.opts.License.Properties {
		license.Set(k, v)
	}
	a.graph.Put(license)

	root := a.graph.Root()
	root.Set("license", license.Ref())
	a.graph.Put(root)
}

// UpdateMainEntity names the seeded workflow entity, links its crate
// distribution, and makes it the root's mainEntity.
func (a *Assembler) UpdateMainEntity() error {
	workflow, ok := a.graph.Get(a.WorkflowURL())
	if !ok {
		return fmt.Errorf("%w: %s", ErrMainEntityMissing, a.WorkflowURL())
	}

	download := rocrate.NewEntity(rocrate.KindThing, a.opts.Workflow.CrateURL(), "DataDownload")
	download.Set("encodingFormat", "application/zip")
	a.graph.Put(download)

	workflow.Set("name", a.opts.Workflow.Name)
	workflow.Set("distribution", download.Ref())
	a.graph.Put(workflow)

	root := a.graph.Root()
	root.Set("mainEntity", workflow.Ref())
	a.graph.Put(root)
	return nil
}

// AddCreateAction adds a potential CreateAction for the task, with the
// task's inputs as its object list, and returns the action's id.
func (a *Assembler) AddCreateAction(task Task) string {
	id := a.newActionID()
	for a.graph.Has(id) {
		id = a.newActionID()
	}

	action := rocrate.NewEntity(rocrate.KindAction, id, "CreateAction")
	action.Set("actionStatus", potentialActionStatus)
	action.Set("name", "RQuest Query")
	if workflow, ok := a.graph.Get(a.WorkflowURL()); ok {
		action.Set("instrument", workflow.Ref())
	}

	action.AppendLink("object", a.addQueryBody(task.QueryFile))
	action.AppendLink("object", a.addQueryKind(task.IsAvailability))
	if a.opts.DBCredentialInputs && !task.DB.IsZero() {
		for _, in := range []struct{ name, value string }{
			{"db_host", task.DB.Host},
			{"db_name", task.DB.Name},
			{"db_user", task.DB.User},
			{"db_password", task.DB.Password},
		} {
			action.AppendLink("object", a.addInput(in.name, in.value))
		}
	}

	a.graph.Put(action)
	return id
}

func (a *Assembler) formalParameter(slot string) rocrate.Entity {
	param := rocrate.NewEntity(
		rocrate.KindFormalParameter,
		fmt.Sprintf("#%s-inputs-%s", a.opts.Workflow.Name, slot),
		"FormalParameter",
	)
	param.Set("name", slot)
	param.Set("dct:conformsTo", formalParameterProfile)
	a.graph.Put(param)
	return param
}

func (a *Assembler) addQueryBody(fileName string) rocrate.Ref {
	param := a.formalParameter("body")

	file := rocrate.NewEntity(rocrate.KindFile, fileName, "File")
	file.Set("name", "rquest-query")
	file.Set("encodingFormat", "application/json")
	file.Set("exampleOfWork", param.Ref())
	a.graph.Put(file)

	root := a.graph.Root()
	root.AppendLink("hasPart", file.Ref())
	a.graph.Put(root)

	return file.Ref()
}

func (a *Assembler) addQueryKind(isAvailability bool) rocrate.Ref {
	slot := Task{IsAvailability: isAvailability}.Kind()
	return a.addInput(slot, isAvailability)
}

func (a *Assembler) addInput(slot string, value any) rocrate.Ref {
	param := a.formalParameter(slot)

	input := rocrate.NewEntity(rocrate.KindPropertyValue, "#input_"+slot, "PropertyValue")
	input.Set("name", slot)
	input.Set("value", value)
	input.Set("exampleOfWork", param.Ref())
	a.graph.Put(input)

	return input.Ref()
}

// AddAgent adds the configured organisation, project and agent, links them
// together and names the agent on every CreateAction in the graph. It does
// nothing when no agent is configured.
func (a *Assembler) AddAgent() error {
	if a.opts.Agent.ID == "" {
		return nil
	}

	agent := rocrate.NewEntity(rocrate.KindAgent, a.opts.Agent.ID, orDefault(a.opts.Agent.Type, "Person"))
	setName(&agent, a.opts.Agent.Name)

	var entities []rocrate.Entity
	if org := a.opts.Organisation; org.ID != "" {
		organisation := rocrate.NewEntity(rocrate.KindOrganization, org.ID, orDefault(org.Type, "Organization"))
		setName(&organisation, org.Name)
		agent.Set("affiliation", organisation.Ref())
		entities = append(entities, organisation)
	}

	if p := a.opts.Project; p.Name != "" {
		if a.projectID == "" {
			id, err := a.newProjectID()
			if err != nil {
				return fmt.Errorf("failed to generate project id: %w", err)
			}
			a.projectID = id
		}

		project := rocrate.NewEntity(rocrate.KindProject, a.projectID, orDefault(p.Type, "Project"))
		project.Set("name", p.Name)
		if len(p.Identifiers) > 0 {
			project.Set("identifier", append([]string(nil), p.Identifiers...))
		}
		for _, f := range p.Funding {
			grant := rocrate.NewEntity(rocrate.KindThing, f.ID, orDefault(f.Type, "Grant"))
			setName(&grant, f.Name)
			entities = append(entities, grant)
			project.AppendLink("funding", grant.Ref())
		}
		for _, m := range p.Members {
			member := rocrate.NewEntity(rocrate.KindAgent, m.ID, orDefault(m.Type, "Person"))
			setName(&member, m.Name)
			entities = append(entities, member)
			project.AppendLink("member", member.Ref())
		}
		project.AppendLink("member", agent.Ref())
		agent.Set("memberOf", project.Ref())
		entities = append(entities, project)
	}

	entities = append(entities, agent)
	for _, e := range entities {
		a.graph.Put(e)
	}

	for _, action := range a.graph.OfKind(rocrate.KindAction) {
		action.Set("agent", agent.Ref())
		a.graph.Put(action)
	}
	return nil
}

// Finalize returns the graph built so far and replaces it with a fresh,
// initialized one. Nothing from the returned graph carries over.
func (a *Assembler) Finalize() *rocrate.Graph {
	g := a.graph
	a.reset()
	return g
}

func (a *Assembler) reset() {
	a.graph = rocrate.NewGraph()
	a.projectID = ""
	a.Initialize()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func setName(e *rocrate.Entity, name string) {
	if name != "" {
		e.Set("name", name)
	}
}
