package chatflow

// ProfileEvent is delivered to profile watchers after a change is persisted.
type ProfileEvent struct {
	// Profile is the new profile state.
	Profile Profile
}

// ChatEvent is delivered to chat watchers after an interaction is appended.
type ChatEvent struct {
	// Interaction is the appended node.
	Interaction Interaction
}

// SettingEvent is delivered to setting watchers after a value is persisted.
type SettingEvent struct {
	// Key names the setting.
	Key string
	// Value is the new value.
	Value string
}
