package plugin

// Type represents the functional category of a plugin.
type Type string

const (
	// TypeTool plugins register additional tools with the dispatcher at startup.
	TypeTool Type = "tool"
	// TypeSink plugins consume completed tool execution results, e.g. for auditing.
	TypeSink Type = "sink"
)

// Capability expresses optional features a plugin may request access to.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// Well-known resource keys exposed to plugins through ExecutionContext.Resources.
const (
	// ResourceToolRegister holds the dispatcher registration function for tool plugins.
	ResourceToolRegister = "tools:register"
	// ResourceSinkResults holds the channel of completed execution results for sink plugins.
	ResourceSinkResults = "sink:results"
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Category     Type
	Capabilities []Capability
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
)
