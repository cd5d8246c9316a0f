package gpu

// Status is the non-fatal outcome of an acquire or present call. Fatal
// results are returned as errors instead.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal means the image was acquired or presented but the
	// swapchain no longer matches the surface exactly.
	StatusSuboptimal
	// StatusOutOfDate means the swapchain can no longer be used with the
	// surface. Nothing was acquired or presented.
	StatusOutOfDate
)

var statusNames = map[Status]string{
	StatusSuccess:    "Success",
	StatusSuboptimal: "Suboptimal",
	StatusOutOfDate:  "OutOfDate",
}

func (s Status) String() string {
	name, ok := statusNames[s]
	if !ok {
		return "unknown"
	}
	return name
}

// NeedsRecreation reports whether the swapchain has to be rebuilt.
func (s Status) NeedsRecreation() bool {
	return s == StatusSuboptimal || s == StatusOutOfDate
}
