package graph

import (
	"sync"

	"github.com/loomworks/loom/types"
)

// Command is one structural edit paired with its inverse.
type Command struct {
	Name string
	Do   func() error
	Undo func() error
}

// History is the undo/redo stack over structural graph edits. While paused,
// recorded commands are coalesced into a single step, so a drag gesture's
// stream of low-level mutations undoes as one action.
type History struct {
	mu     sync.Mutex
	undo   []*step
	redo   []*step
	paused bool
	batch  *step
}

type step struct {
	name     string
	commands []Command
}

// NewHistory creates an empty command history.
func NewHistory() *History {
	return &History{}
}

// Record pushes an already-executed command onto the undo stack and clears
// the redo stack. While paused, the command joins the open batch instead.
func (h *History) Record(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.paused {
		h.batch.commands = append(h.batch.commands, cmd)
		return
	}
	h.undo = append(h.undo, &step{name: cmd.Name, commands: []Command{cmd}})
	h.redo = nil
}

// Pause opens a coalescing batch. Nested pauses are not supported; pausing
// twice keeps the original batch open.
func (h *History) Pause(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return
	}
	h.paused = true
	h.batch = &step{name: name}
}

// Resume closes the open batch. An empty batch is discarded.
func (h *History) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return
	}
	h.paused = false
	if len(h.batch.commands) > 0 {
		h.undo = append(h.undo, h.batch)
		h.redo = nil
	}
	h.batch = nil
}

// Undo reverts the most recent step, running its commands' inverses in
// reverse order, and moves the step to the redo stack.
func (h *History) Undo() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return types.NewError(types.ErrInvalidTransition, "nothing to undo")
	}
	s := h.undo[len(h.undo)-1]
	for i := len(s.commands) - 1; i >= 0; i-- {
		if err := s.commands[i].Undo(); err != nil {
			return err
		}
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, s)
	return nil
}

// Redo re-applies the most recently undone step.
func (h *History) Redo() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return types.NewError(types.ErrInvalidTransition, "nothing to redo")
	}
	s := h.redo[len(h.redo)-1]
	for _, cmd := range s.commands {
		if err := cmd.Do(); err != nil {
			return err
		}
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, s)
	return nil
}

// CanUndo reports whether an undo step is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether a redo step is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Depth returns the number of undoable steps.
func (h *History) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo)
}
