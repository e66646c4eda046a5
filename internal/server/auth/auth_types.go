package auth

import (
	"errors"

	"github.com/openmined/cloudsync/internal/utils"
)

// DefaultUser owns every file when auth is disabled.
const DefaultUser = "local"

var (
	ErrInvalidEmail       = utils.ErrEmailInvalid
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrUnknownClient      = errors.New("unknown client id")
)
