package kevent

// userFilter implements FilterUser: events raised by the application
// itself through NoteTrigger. The knote's saved fflags and data are what
// gets delivered; NoteFFAnd, NoteFFOr and NoteFFCopy edit the saved
// fflags on every modify.
type userFilter struct{}

func (userFilter) IsFD() bool { return false }

func (userFilter) Attach(kn *Knote) error {
	kn.hook = kn.sfflags&NoteTrigger != 0
	kn.sfflags &= NoteFFlagsMask
	return nil
}

func (userFilter) Detach(*Knote) {}

func (userFilter) Event(kn *Knote, _ int64) bool {
	triggered, _ := kn.hook.(bool)
	return triggered
}

func (userFilter) Touch(kn *Knote, ev *Event, op TouchOp) error {
	switch op {
	case TouchRegister:
		if ev.FFlags&NoteTrigger != 0 {
			kn.hook = true
		}
		ffctrl := ev.FFlags & NoteFFCtrlMask
		fflags := ev.FFlags & NoteFFlagsMask
		switch ffctrl {
		case NoteFFAnd:
			kn.sfflags &= fflags
		case NoteFFOr:
			kn.sfflags |= fflags
		case NoteFFCopy:
			kn.sfflags = fflags
		}
		kn.sdata = ev.Data
		if ev.Flags&EvClear != 0 {
			kn.hook = false
			kn.ev.Data, kn.ev.FFlags = 0, 0
		}

	case TouchProcess:
		*ev = kn.ev
		ev.FFlags = kn.sfflags
		ev.Data = kn.sdata
		if kn.ev.Flags&EvClear != 0 {
			kn.hook = false
			kn.ev.Data, kn.ev.FFlags = 0, 0
		}
	}
	return nil
}
