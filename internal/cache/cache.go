package cache

import "time"

// Cache stores values of T keyed by whatever identity the implementation
// chooses. Insert merges with existing entries.
type Cache[T any] interface {
	Insert(data ...T) error
	Delete(data ...T) error
	Get() ([]T, error)
	Close() error
}

// Requester is a host that has sent datagrams to the responder, keyed by
// host and port.
type Requester struct {
	Host       string    `db:"host" json:"host" yaml:"host"`
	Port       int       `db:"port" json:"port" yaml:"port"`
	Polls      int64     `db:"polls" json:"polls" yaml:"polls"`
	Dropped    int64     `db:"dropped" json:"dropped" yaml:"dropped"`
	LastReason string    `db:"last_reason" json:"last_reason,omitempty" yaml:"last_reason,omitempty"`
	Session    string    `db:"session" json:"session" yaml:"session"`
	FirstSeen  time.Time `db:"first_seen" json:"first_seen" yaml:"first_seen"`
	LastSeen   time.Time `db:"last_seen" json:"last_seen" yaml:"last_seen"`
}
