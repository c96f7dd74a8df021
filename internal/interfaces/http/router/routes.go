// Package router 提供 HTTP 路由配置
package router

import (
	"hybrid-ranking-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, rankingHandler *handler.RankingHandler) {
	// 搜索
	v1.GET("/search", rankingHandler.Search)

	// 推荐
	v1.GET("/recommend/:user_id", rankingHandler.Recommend)
}
