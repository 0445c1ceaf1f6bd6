package webserver

import (
	"github.com/clearvoice-app/clearvoice/src/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func New(cfg config.Server, db *gorm.DB, rdb *redis.Client, alerts Alerts) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	authH := NewAuth(db, []byte(cfg.JWTSecret))
	recH := NewRecords(db, rdb, alerts)
	notifH := NewNotifications(db)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", authH.Login)

		secured := v1.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
		secured.POST("/records", recH.Create)
		secured.GET("/records", recH.List)
		secured.GET("/records/:id", recH.Get)
		secured.PATCH("/records/:id", recH.Patch)
		secured.DELETE("/records/:id", recH.Delete)
		secured.POST("/notifications", notifH.Create)
		secured.GET("/notifications", notifH.List)
	}

	return r
}
