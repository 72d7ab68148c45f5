package api

import (
	"net/http"

	"github.com/anooppandey17/virtual-teacher/internal/interfaces"
	"github.com/anooppandey17/virtual-teacher/internal/llm"
)

// ModelHandler exposes the upstream model list.
type ModelHandler struct {
	models interfaces.ModelService
}

func NewModelHandler(models interfaces.ModelService) *ModelHandler {
	return &ModelHandler{models: models}
}

// HandleListModels godoc
// @Summary      List upstream models
// @Description  Gets the models the configured chat-completions upstream offers.
// @Tags         Models
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   llm.ModelInfo
// @Failure      403  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/models [get]
func (h *ModelHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.List(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	if models == nil {
		models = []llm.ModelInfo{}
	}
	respondWithJSON(w, http.StatusOK, models)
}
