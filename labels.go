package skiff

import "strconv"

// Container labels carrying skiff ownership metadata. Labels are the
// only state this module leaves on the engine; the CLI's list and
// teardown commands reconstruct everything they need from them.
const (
	// LabelManaged marks a container as created by skiff.
	LabelManaged = "skiff.managed"

	// ManagedValue is the value set for LabelManaged.
	ManagedValue = "true"

	// LabelService holds the ServiceSpec name the container was
	// provisioned for.
	LabelService = "skiff.service"

	// LabelHostPort holds the host port allocated for the service.
	LabelHostPort = "skiff.host-port"
)

// ownershipLabels builds the label set stamped onto every container
// skiff creates.
func ownershipLabels(service string, hostPort int) map[string]string {
	return map[string]string{
		LabelManaged:  ManagedValue,
		LabelService:  service,
		LabelHostPort: strconv.Itoa(hostPort),
	}
}

// ManagedFilter is the label filter matching all skiff-managed
// containers, for use with container.List.
func ManagedFilter() map[string]string {
	return map[string]string{LabelManaged: ManagedValue}
}
