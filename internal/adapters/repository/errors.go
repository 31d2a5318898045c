package repository

import (
	"errors"

	"github.com/okian/playrank/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrTableNotFound   = model.ErrTableNotFound
	ErrEntryNotFound   = model.ErrEntryNotFound
	ErrInvalidLimit    = model.ErrInvalidLimit
	ErrVersionConflict = errors.New("table version conflict")
	ErrDuplicateUser   = errors.New("duplicate user in entries")
	ErrInvalidEntry    = errors.New("invalid entry")
)
