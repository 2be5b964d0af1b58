package media

import "time"

// LongPressThreshold is how long an image must be pressed to enter
// selection mode.
const LongPressThreshold = 500 * time.Millisecond

// Press handles a press of the given duration on an image. A long press
// enters selection mode with only that image selected, replacing any
// earlier selection; it reports whether the press was consumed that way.
func (l *Library) Press(imageID string, held time.Duration) bool {
	if held < LongPressThreshold {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selecting = true
	l.selected = []string{imageID}
	return true
}

// Click handles a plain click on an image. In selection mode it toggles
// the image and returns false; otherwise it returns true and the caller
// opens the preview.
func (l *Library) Click(imageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selecting {
		return true
	}
	l.toggleLocked(imageID)
	return false
}

// ToggleSelection flips the membership of an image, entering selection
// mode if needed.
func (l *Library) ToggleSelection(imageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selecting = true
	l.toggleLocked(imageID)
}

// EnterSelection turns selection mode on with an empty selection.
func (l *Library) EnterSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selecting {
		l.selecting = true
		l.selected = nil
	}
}

// ExitSelection turns selection mode off and clears the selection.
func (l *Library) ExitSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitSelectionLocked()
}

func (l *Library) exitSelectionLocked() {
	l.selecting = false
	l.selected = nil
}

// Selecting reports whether selection mode is on.
func (l *Library) Selecting() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selecting
}

// Selected returns the selected image ids in selection order.
func (l *Library) Selected() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.selected...)
}

func (l *Library) toggleLocked(id string) {
	for i, s := range l.selected {
		if s == id {
			l.selected = append(l.selected[:i], l.selected[i+1:]...)
			return
		}
	}
	l.selected = append(l.selected, id)
}
