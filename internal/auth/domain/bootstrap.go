package domain

// BootstrapData lists the clients and scopes ensured at startup.
type BootstrapData struct {
	Scopes  []ScopeDescriptor  `yaml:"scopes"`
	Clients []ClientDescriptor `yaml:"clients"`
}
