package discovery

// NotAvailable is shown when an interface has no IPv4 address or MAC.
const NotAvailable = "N/A"

// Interface represents a capture-capable network interface
type Interface struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	MAC         string `json:"mac"`
	IPv4        string `json:"ipv4"`
	Description string `json:"description,omitempty"`
	Up          bool   `json:"up"`
}
