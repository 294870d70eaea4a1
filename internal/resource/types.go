package resource

import (
	"fmt"
	"strings"
)

// Kind names one of the closed set of managed entity types.
type Kind string

const (
	KindDirectory  Kind = "directory"
	KindLink       Kind = "link"
	KindFile       Kind = "file"
	KindRemoteFile Kind = "remote_file"
	KindExtract    Kind = "extract"
	KindShapeIndex Kind = "shape_index"
	KindDirWatch   Kind = "dir_watch"
	KindService    Kind = "service"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{
	KindDirectory,
	KindLink,
	KindFile,
	KindRemoteFile,
	KindExtract,
	KindShapeIndex,
	KindDirWatch,
	KindService,
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Action is the operation a handler performs to converge a resource.
type Action string

const (
	// ActionNothing marks a resource that only runs when notified.
	ActionNothing         Action = "nothing"
	ActionCreate          Action = "create"
	ActionCreateIfMissing Action = "create_if_missing"
	ActionDelete          Action = "delete"
	ActionRun             Action = "run"
	ActionWatch           Action = "watch"
	ActionStart           Action = "start"
	ActionStop            Action = "stop"
	ActionRestart         Action = "restart"
	ActionReload          Action = "reload"
)

// ID identifies a resource within a pass.
type ID struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

// String renders the ID as kind[name].
func (id ID) String() string {
	return fmt.Sprintf("%s[%s]", id.Kind, id.Name)
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Kind == "" && id.Name == ""
}

// ParseID parses the kind[name] form produced by String.
func ParseID(s string) (ID, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return ID{}, fmt.Errorf("invalid resource reference %q: want kind[name]", s)
	}
	id := ID{Kind: Kind(s[:open]), Name: s[open+1 : len(s)-1]}
	if id.Name == "" {
		return ID{}, fmt.Errorf("invalid resource reference %q: empty name", s)
	}
	if !id.Kind.Valid() {
		return ID{}, fmt.Errorf("invalid resource reference %q: unknown kind %q", s, id.Kind)
	}
	return id, nil
}

// Timing selects when a notification fires.
type Timing int

const (
	// Delayed notifications fire once, after every declared resource ran.
	Delayed Timing = iota
	// Immediate notifications fire right after the source resource finishes.
	Immediate
)

func (t Timing) String() string {
	switch t {
	case Immediate:
		return "immediate"
	case Delayed:
		return "delayed"
	default:
		return fmt.Sprintf("timing(%d)", int(t))
	}
}

// Notification is declared on a source resource and fires when the source
// records a change.
type Notification struct {
	Target ID
	Action Action
	Timing Timing
}

// Subscription is the reverse form of Notification: it is declared on the
// target and names the source it listens to.
type Subscription struct {
	Source ID
	Action Action
	Timing Timing
}

// Resource is one declared unit of managed state plus the action that
// converges it.
type Resource struct {
	ID     ID
	Action Action
	State  Descriptor

	Notifies   []Notification
	Subscribes []Subscription

	// IgnoreFailure contains apply failures: the failure is recorded as a
	// warning and the resource counts as unchanged.
	IgnoreFailure bool
}

// OnlyWhenNotified reports whether the resource is skipped by normal
// sequential evaluation.
func (r *Resource) OnlyWhenNotified() bool {
	return r.Action == ActionNothing
}

// Edge is a resolved notification from a source resource to an action on a
// target resource.
type Edge struct {
	Source ID
	Target ID
	Action Action
	Timing Timing
}

// Key identifies the edge's effect for deduplication: the same action on
// the same target collapses to one execution.
func (e Edge) Key() string {
	return e.Target.String() + "#" + string(e.Action)
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s:%s (%s)", e.Source, e.Target, e.Action, e.Timing)
}

// ChangeRecord is produced by every evaluation of a resource.
type ChangeRecord struct {
	Seq       int64
	Resource  ID
	Action    Action
	Changed   bool
	Triggered bool // evaluated because a notification fired
	Source    ID   // source of the firing notification, zero when not triggered
	Err       error
}

// Failed reports whether the evaluation produced an error.
func (c ChangeRecord) Failed() bool {
	return c.Err != nil
}
