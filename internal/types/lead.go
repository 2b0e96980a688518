package types

import "time"

// LeadStatus is the sales pipeline state of a lead.
type LeadStatus string

const (
	LeadStatusLost      LeadStatus = "lost"
	LeadStatusNew       LeadStatus = "new"
	LeadStatusNurturing LeadStatus = "nurturing"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
)

var leadStatusRank = map[LeadStatus]int{
	LeadStatusLost:      0,
	LeadStatusNew:       1,
	LeadStatusNurturing: 2,
	LeadStatusQualified: 3,
	LeadStatusConverted: 4,
}

// Rank orders statuses by priority. Unknown values rank below lost.
func (s LeadStatus) Rank() int {
	if r, ok := leadStatusRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	_, ok := leadStatusRank[s]
	return ok
}

// Lead is a customer-relationship record keyed softly by email.
// Email is not unique; the most recently created row for an address wins.
type Lead struct {
	ID        string     `json:"id"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Budget    string     `json:"budget,omitempty"`
	Details   string     `json:"details,omitempty"`
	Source    string     `json:"source,omitempty"`
	Status    LeadStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Customer is the subset of a processor customer used to fill missing identity.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// EmailMessage is a single transactional email.
type EmailMessage struct {
	To       string
	ReplyTo  string
	Subject  string
	TextBody string
	HTMLBody string
}

// PushMessage is a single mobile push notification.
type PushMessage struct {
	Title    string
	Message  string
	Priority int
}
