package crate

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultProfile is the Trusted Workflow Run Crate profile every crate conforms to.
	DefaultProfile = "https://w3id.org/trusted-wfrun-crate/0.3"

	formalParameterProfile = "https://bioschemas.org/profiles/FormalParameter/1.0-RELEASE/"
	potentialActionStatus  = "http://schema.org/PotentialActionStatus"
)

// WorkflowOptions identifies the workflow a crate asks the agent to run.
type WorkflowOptions struct {
	BaseURL string `validate:"required,url"`
	ID      string `validate:"required"`
	Version string `validate:"required"`
	Name    string `validate:"required"`
}

// URL returns the canonical workflow URL: {base}/{id}?version={version}.
func (w WorkflowOptions) URL() string {
	return joinWithVersion(w.Version, w.BaseURL, w.ID)
}

// CrateURL returns the workflow's crate download URL:
// {base}/{id}/ro_crate?version={version}.
func (w WorkflowOptions) CrateURL() string {
	return joinWithVersion(w.Version, w.BaseURL, w.ID, "ro_crate")
}

func joinWithVersion(version string, base string, elems ...string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return fmt.Sprintf("%s/%s?version=%s", strings.TrimRight(base, "/"), strings.Join(elems, "/"), url.QueryEscape(version))
	}
	u = u.JoinPath(elems...)
	q := u.Query()
	q.Set("version", version)
	u.RawQuery = q.Encode()
	return u.String()
}

// License is the license attached to every crate. An empty URI disables it.
type License struct {
	URI        string         `yaml:"uri" validate:"omitempty,uri"`
	Properties map[string]any `yaml:"properties"`
}

// Organisation is the organisation the submitting agent is affiliated with.
type Organisation struct {
	ID   string `yaml:"id" validate:"required_with=Name"`
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// Agent is the person or software agent the crate is submitted on behalf of.
type Agent struct {
	ID   string `yaml:"id" validate:"required_with=Name"`
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// Reference is a contextual entity named from configuration, such as a
// grant funding the project or one of its members.
type Reference struct {
	ID   string `yaml:"id" validate:"required"`
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// Project is the project the agent is working on. Its id is generated per build.
type Project struct {
	Type        string      `yaml:"type"`
	Name        string      `yaml:"name"`
	Identifiers []string    `yaml:"identifiers"`
	Funding     []Reference `yaml:"funding" validate:"dive"`
	Members     []Reference `yaml:"members" validate:"dive"`
}

// Options is the static configuration shared by every build.
type Options struct {
	Workflow     WorkflowOptions
	Profile      string
	License      License
	Agent        Agent
	Project      Project
	Organisation Organisation

	// DBCredentialInputs adds the task's database connection parameters as
	// CreateAction inputs.
	DBCredentialInputs bool
}
