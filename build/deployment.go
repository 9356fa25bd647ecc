package build

// DeploymentType selects which deployment flavor the wallet library is
// compiled for. The flavor is fixed at build time through the "dev" build
// tag and steers how subsystem loggers are constructed.
type DeploymentType byte

const (
	// Development enables the extra logging hooks used while hacking on
	// the wallet and running its test suites.
	Development DeploymentType = iota

	// Production leaves the testing hooks out and wires loggers through
	// the primary log backend only.
	Production
)

// String returns a human readable name of the deployment flavor.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// IsProdBuild returns true if the library was compiled for production.
func IsProdBuild() bool {
	return Deployment == Production
}

// IsDevBuild returns true if the library was compiled for development.
func IsDevBuild() bool {
	return Deployment == Development
}
