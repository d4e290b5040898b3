package capture

import (
	"time"

	"github.com/AlverezYari/reviewgreen/internal/logging"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

type Kind string

const (
	KindStatus            Kind = "status"
	KindCameraUnavailable Kind = "camera_unavailable"
	KindEncoding          Kind = "encoding"
	KindBridge            Kind = "bridge"
	KindShare             Kind = "share"
)

// Notification is a transient, dismissible message for the user.
type Notification struct {
	Level   Level
	Kind    Kind
	Message string
	Time    time.Time
}

type Notifier interface {
	Notify(n Notification)
}

// ChanNotifier queues notifications for a UI loop to drain.
type ChanNotifier struct {
	C chan Notification
}

func NewChanNotifier(size int) *ChanNotifier {
	return &ChanNotifier{C: make(chan Notification, size)}
}

func (n *ChanNotifier) Notify(note Notification) {
	select {
	case n.C <- note:
	default:
		logging.Warnf("capture: notification dropped: %s", note.Message)
	}
}
