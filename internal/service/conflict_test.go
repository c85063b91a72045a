package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"reservas/internal/domain"
	"reservas/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestFindConflicts(t *testing.T) {
	existing := []*models.Reservation{
		{ID: 1, Start: at(10, 10), End: at(10, 12), Status: models.StatusPending},
		{ID: 2, Start: at(10, 14), End: at(10, 16), Status: models.StatusCancelled},
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"overlaps tail", at(10, 11), at(10, 13), 1},
		{"touches end", at(10, 12), at(10, 14), 0},
		{"touches start", at(10, 8), at(10, 10), 0},
		{"contains", at(10, 9), at(10, 13), 1},
		{"inside cancelled", at(10, 14), at(10, 15), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FindConflicts(existing, tt.start, tt.end, 0), tt.want)
		})
	}

	assert.Empty(t, FindConflicts(existing, at(10, 11), at(10, 13), 1))
}

func TestConflictDetectorWrapsErrors(t *testing.T) {
	repo := new(mockRepo)
	repo.On("CheckConflict", mock.Anything, int64(1), at(10, 10), at(10, 12), int64(3)).Return(false, errors.New("database is locked"))

	_, err := NewConflictDetector(repo).HasConflict(context.Background(), 1, at(10, 10), at(10, 12), 3)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}
