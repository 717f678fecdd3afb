package config

// Config is the fully loaded, validated, ready-to-use configuration for one
// agentbus deployment.
type Config struct {
	DataDir string
	LogDir  string

	Bus     *BusConfig
	Runtime *RuntimeConfig

	AgentRegistry      *AgentRegistry
	DeploymentRegistry *DeploymentRegistry
}

// Stats is a small summary used for the startup log line.
type Stats struct {
	Agents           int
	DeploymentGroups int
}

// Stats summarizes the loaded registries.
func (c *Config) Stats() Stats {
	return Stats{
		Agents:           c.AgentRegistry.Len(),
		DeploymentGroups: len(c.DeploymentRegistry.GetAll()),
	}
}
