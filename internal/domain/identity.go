package domain

// Identity is the authenticated principal behind a connection.
type Identity struct {
	// Subject is the username the store keys messages by.
	Subject string
	// DisplayName appears in presence text. Falls back to Subject.
	DisplayName string
}

// Name returns the label shown to other room members.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Subject
}
