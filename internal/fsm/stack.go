// Package fsm provides a small hierarchical state machine primitive: a stack
// of typed frames with entry/exit callbacks fired on every parent/child
// transition. Push on a block start, pop on the matching block end; each
// frame interprets the lines that arrive while it is on top.
package fsm

// Frame is one state in the hierarchy.
type Frame interface {
	// Kind names the frame for diagnostics.
	Kind() string

	// CanReceive reports whether an incoming action belongs to this frame.
	// Returning false means the frame is finished and should be popped
	// before the action is dispatched.
	CanReceive(kind string) bool

	// OnEnterFromParent fires when this frame is pushed onto its parent.
	OnEnterFromParent(parent Frame)

	// OnEnterFromChild fires when a finished child pops back to this frame.
	OnEnterFromChild(child Frame)

	// OnLeaveToChild fires on the parent when a child is pushed.
	OnLeaveToChild()

	// OnLeaveToParent fires on a child as it pops.
	OnLeaveToParent()
}

// Stack is a hierarchy of frames rooted at a frame that never pops.
type Stack struct {
	frames []Frame
}

// NewStack creates a stack with the given root frame.
func NewStack(root Frame) *Stack {
	return &Stack{frames: []Frame{root}}
}

// Depth returns the number of frames including the root.
func (s *Stack) Depth() int { return len(s.frames) }

// Current returns the top frame.
func (s *Stack) Current() Frame { return s.frames[len(s.frames)-1] }

// Push makes f the new top frame, firing the transition callbacks.
func (s *Stack) Push(f Frame) {
	current := s.Current()
	current.OnLeaveToChild()
	f.OnEnterFromParent(current)
	s.frames = append(s.frames, f)
}

// Pop removes the top frame, firing the transition callbacks. The root frame
// is never popped.
func (s *Stack) Pop() {
	if len(s.frames) <= 1 {
		return
	}
	child := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	parent := s.Current()

	child.OnLeaveToParent()
	parent.OnEnterFromChild(child)
}

// BaseFrame provides no-op callbacks for frames that only need a subset.
type BaseFrame struct{}

func (BaseFrame) CanReceive(string) bool    { return false }
func (BaseFrame) OnEnterFromParent(Frame)   {}
func (BaseFrame) OnEnterFromChild(Frame)    {}
func (BaseFrame) OnLeaveToChild()           {}
func (BaseFrame) OnLeaveToParent()          {}
