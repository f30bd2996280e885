package reconcile

import "github.com/ammawel/cul_bridge/pkg/objects"

type TaskKind int

const (
	// TaskCreate creates an object if it does not exist yet.
	TaskCreate TaskKind = iota
	// TaskWrite writes a state value.
	TaskWrite
)

func (k TaskKind) String() string {
	if k == TaskCreate {
		return "create"
	}
	return "write"
}

// Task is one pending mutation against the store.
type Task struct {
	Kind   TaskKind
	ID     string
	Object objects.Object
	Value  any
	Ack    bool
}

// Stats counts processed tasks since the queue was created.
type Stats struct {
	Created int `json:"created"`
	Written int `json:"written"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}
