package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// InstanceID 解析路径参数 :id
func InstanceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
