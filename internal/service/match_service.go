package service

import (
	"fmt"

	"github.com/pointlock/pointlock-backend/internal/models"
)

type MatchService struct {
	matchRepo MatchStore
}

func NewMatchService(matchRepo MatchStore) *MatchService {
	return &MatchService{matchRepo: matchRepo}
}

// GetByID 매치 조회
func (s *MatchService) GetByID(id string) (*models.Match, error) {
	match, err := s.matchRepo.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ListByUser 사용자 매치 히스토리 (최신순, 페이지네이션)
func (s *MatchService) ListByUser(userID string, page, pageSize int) ([]*models.Match, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	matches, err := s.matchRepo.FindByUserID(userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}
