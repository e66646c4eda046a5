package server

import (
	"github.com/jmoiron/sqlx"
	"github.com/openmined/cloudsync/internal/server/auth"
	"github.com/openmined/cloudsync/internal/server/files"
)

type Services struct {
	Files *files.FileService
	Auth  *auth.AuthService
}

func NewServices(config *Config, db *sqlx.DB) *Services {
	return &Services{
		Files: files.NewFileService(db),
		Auth:  auth.NewAuthService(&config.Auth),
	}
}
