package store

import (
	"time"
)

// TransferRecord is the persisted form of a transfer. One row per transfer,
// rewritten in full on every state transition and on the 5-second progress
// snapshot while in flight.
type TransferRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Direction string `gorm:"size:16;index:idx_transfers_direction_state"`
	Username  string `gorm:"size:256;index"`

	// RemoteFilename keeps the overlay's backslash separators;
	// LocalFilename uses the host form.
	RemoteFilename string `gorm:"size:4096"`
	LocalFilename  string `gorm:"size:4096"`

	Size             int64
	StartOffset      int64
	BytesTransferred int64
	AverageSpeed     float64

	State string `gorm:"size:32;index:idx_transfers_direction_state"`

	EnqueuedAt time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time

	// FailureJSON carries the failure detail blob for errored transfers.
	FailureJSON string `gorm:"type:text"`

	UpdatedAt time.Time
}

// TableName keeps the table name stable across GORM versions.
func (TransferRecord) TableName() string { return "transfers" }

// SearchRecord is one search the operator issued.
type SearchRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Text      string `gorm:"size:1024"`
	Token     uint32 `gorm:"index"`
	State     string `gorm:"size:32"`
	StartedAt time.Time
	EndedAt   *time.Time

	ResponseCount int
	FileCount     int

	Responses []SearchResponseRecord `gorm:"foreignKey:SearchID;constraint:OnDelete:CASCADE"`
}

// TableName keeps the table name stable across GORM versions.
func (SearchRecord) TableName() string { return "searches" }

// SearchResponseRecord is one peer's answer to a search.
type SearchResponseRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	SearchID string `gorm:"size:36;index"`
	Username string `gorm:"size:256"`

	HasFreeSlot bool
	QueueLength int
	UploadSpeed int

	ReceivedAt time.Time

	Files []SearchFileRecord `gorm:"foreignKey:ResponseID;constraint:OnDelete:CASCADE"`
}

// TableName keeps the table name stable across GORM versions.
func (SearchResponseRecord) TableName() string { return "search_responses" }

// SearchFileRecord is one file in a peer's search response.
type SearchFileRecord struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	ResponseID uint `gorm:"index"`

	Name      string `gorm:"size:4096"`
	Size      int64
	Extension string `gorm:"size:32"`

	BitRate         int
	SampleRate      int
	DurationSecs    int
	VariableBitRate bool
}

// TableName keeps the table name stable across GORM versions.
func (SearchFileRecord) TableName() string { return "search_files" }

// MetaRecord is a key/value row; the schema_version key gates startup.
type MetaRecord struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:256"`
}

// TableName keeps the table name stable across GORM versions.
func (MetaRecord) TableName() string { return "meta" }
