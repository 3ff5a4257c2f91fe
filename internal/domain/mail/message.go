package mail

import "time"

// Message is one junk-folder item as returned by a MailSource.
// ID is the only field used for dedup and deletion.
type Message struct {
	ID         string
	Sender     string
	Subject    string
	Preview    string
	ReceivedAt time.Time
}

type Folder struct {
	ID          string
	DisplayName string
}
