package host

// Bridge is the part of the host's web-app API the storefront relies on.
//
// SendData is one-way: the host gives no delivery acknowledgement, so the only
// failure a caller can observe is a returned error.
type Bridge interface {
	Ready()
	Expand()
	InitData() string
	InitDataUnsafe() InitDataUnsafe
	SendData(data string) error
	ShowPopup(title, message string)
	ShowAlert(message string)
	Close()
}

// Haptics is implemented by bridges that can drive haptic feedback.
type Haptics interface {
	ImpactOccurred(style string)
	NotificationOccurred(kind string)
}

// Detector probes for the host bridge. It returns nil while none is present.
type Detector func() Bridge

// Impact fires an impact haptic when b supports it.
func Impact(b Bridge, style string) {
	if h, ok := b.(Haptics); ok {
		h.ImpactOccurred(style)
	}
}

// Notify fires a notification haptic when b supports it.
func Notify(b Bridge, kind string) {
	if h, ok := b.(Haptics); ok {
		h.NotificationOccurred(kind)
	}
}
