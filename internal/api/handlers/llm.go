package handlers

import (
	"net/http"

	"github.com/neuralchat/ragserver/internal/llm"
)

type ModelsHandler struct {
	gateway llm.Gateway
}

func NewModelsHandler(gw llm.Gateway) *ModelsHandler {
	return &ModelsHandler{gateway: gw}
}

// Models lists the chat and embedding models of every registered provider.
func (h *ModelsHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.gateway.ListModels()
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "count": len(models)})
}
