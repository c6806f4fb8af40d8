package ota

// Progress is a snapshot of an image write
type Progress struct {
	Written  int64
	Expected int64
	Fraction float64
}

// Done reports whether the declared length has been written
func (p Progress) Done() bool {
	return p.Expected > 0 && p.Written >= p.Expected
}

func newProgress(written, expected int64) Progress {
	p := Progress{Written: written, Expected: expected}
	if expected > 0 {
		p.Fraction = float64(written) / float64(expected)
	}
	return p
}

// ProgressObserver receives a Progress after every chunk written to flash.
// It is called on the updater's goroutine and must not block for long.
type ProgressObserver interface {
	Progress(p Progress)
}

// ObserverFunc adapts a function to ProgressObserver
type ObserverFunc func(Progress)

// Progress calls f(p)
func (f ObserverFunc) Progress(p Progress) {
	f(p)
}

// ChannelObserver forwards progress onto a channel. Updates that would
// block are dropped; a reader only ever needs the latest one.
type ChannelObserver struct {
	C chan Progress
}

// NewChannelObserver creates a ChannelObserver with the given buffer
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{C: make(chan Progress, buffer)}
}

// Progress implements ProgressObserver
func (o *ChannelObserver) Progress(p Progress) {
	select {
	case o.C <- p:
	default:
	}
}
