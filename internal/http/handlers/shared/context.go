package shared

import "github.com/gin-gonic/gin"

// OperatorContextKey JWT 中间件写入的操作人标识
const OperatorContextKey = "operator"

// GetOperator 读取当前操作人，未鉴权时返回空字符串。
func GetOperator(c *gin.Context) string {
	value, exists := c.Get(OperatorContextKey)
	if !exists {
		return ""
	}
	if operator, ok := value.(string); ok {
		return operator
	}
	return ""
}
