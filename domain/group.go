package domain

import "time"

// GroupRecord is the persisted membership of a group.
type GroupRecord struct {
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Grant is the set of permissions a user holds on a resource.
type Grant struct {
	User        string     `json:"user"`
	Resource    string     `json:"resource"`
	Permissions Permission `json:"permissions"`
}
