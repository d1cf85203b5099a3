package repository

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Client struct {
	DB *gorm.DB
}

// NewRepository opens the execution audit store. The engine itself never
// touches the database; the boundary records submissions and their terminal
// outcomes for later inspection.
func NewRepository(connectionUrl string) (Repository, error) {
	db, err := gorm.Open(postgres.Open(connectionUrl), &gorm.Config{})

	if err != nil {
		return nil, err
	}

	_ = db.AutoMigrate(&Execution{})

	return Client{DB: db}, nil
}

type Repository interface {
	InsertExecution(execution *Execution) error
	UpdateExecution(id string, columns Execution) (bool, error)
	GetExecution(id string) (*Execution, error)
}
