package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/shared/constants"
)

type Pagination struct {
	Page     int
	PageSize int
}

// ParsePagination reads page and page_size from the query string, applying
// defaults and capping page_size at MaxPageSize.
func ParsePagination(c *gin.Context) Pagination {
	page := parseQueryInt(c, "page", constants.DefaultPage)
	pageSize := parseQueryInt(c, "page_size", constants.DefaultPageSize)
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}
