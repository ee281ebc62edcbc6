package progress

type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Record is the payload of every progress event the backend pushes.
type Record struct {
	Step        string `json:"step"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	Status      Status `json:"status"`
}

func (r Record) Done() bool {
	return r.Status == StatusComplete || r.Status == StatusError
}

// Percent is CurrentStep/TotalSteps in [0, 100]; 0 when the total is unknown.
func (r Record) Percent() int {
	if r.TotalSteps <= 0 || r.CurrentStep <= 0 {
		return 0
	}
	if r.CurrentStep >= r.TotalSteps {
		return 100
	}
	return r.CurrentStep * 100 / r.TotalSteps
}
