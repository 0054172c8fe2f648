package server

import (
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleSearch(c *gin.Context) {
	results, err := h.search.Search(c.Request.Context(), c.Query("value"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Search results found", results, len(results))
}
