package repository

import (
	"time"
)

// Execution is the audit record for one session: what ran, how it ended and
// how long it took. Program output is deliberately not persisted; execution
// state does not outlive the session.
type Execution struct {
	ID string `gorm:"primarykey"`

	Language string
	Status   string

	CompileMs int64
	RuntimeMs int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Client) InsertExecution(execution *Execution) error {
	result := c.DB.Create(execution)
	return result.Error
}

func (c Client) UpdateExecution(id string, columns Execution) (bool, error) {
	result := c.DB.Model(&Execution{ID: id}).Updates(columns)
	return result.RowsAffected > 0, result.Error
}

func (c Client) GetExecution(id string) (*Execution, error) {
	var execution Execution

	if result := c.DB.First(&execution, "id = ?", id); result.Error != nil {
		return nil, result.Error
	}

	return &execution, nil
}
