package service

import (
	"context"

	"github.com/anooppandey17/virtual-teacher/internal/llm"
)

// ModelService exposes the upstream model catalogue to admins.
type ModelService struct {
	llm llm.Provider
}

func NewModelService(provider llm.Provider) *ModelService {
	return &ModelService{llm: provider}
}

// List returns the models the upstream currently offers.
func (s *ModelService) List(ctx context.Context) ([]llm.ModelInfo, error) {
	return s.llm.ListModels(ctx)
}
