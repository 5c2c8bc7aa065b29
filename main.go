package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"genshai/controller"
	"genshai/model"
	"genshai/platform"
	"genshai/service"

	_uuid "github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := os.Getenv("CORS_ORIGIN")
		if origin == "" {
			origin = "http://localhost"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Origin, Authorization, Accept, Client-Security-Token, Accept-Encoding, x-access-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Conversation-Id, X-Request-Id")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
		} else {
			c.Next()
		}
	}
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		userAgent := c.Request.UserAgent()
		requestId := c.GetString("requestId")

		logrus.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			requestId,
			status,
			latency,
			clientIP,
			method,
			path,
			userAgent,
		)
	}
}

var auth = new(controller.AuthController)

// TokenAuthMiddleware ...
// JWT Authentication middleware attached to each request that needs to be authenitcated to
// validate the access_token in the header
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.TokenValid(c)
		c.Next()
	}
}

func main() {
	fmt.Println("Server started...")

	//Load the .env file
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("failed to load the env file")
	}

	platform.InitFile("./log", "gin")

	r := gin.Default()
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware())
	r.Use(platform.MetricsMiddleware())

	//init database
	platform.InitDB()
	model.InstallDB()

	platform.InitLLMClient()
	platform.InitRedis()

	store := model.NewStore(platform.DB)
	gateway := platform.GatewayFromEnv()

	chatService := service.NewChatService(store, gateway)
	chatService.SetNotifier(service.NewNotifier())
	chatService.SetTitleService(service.NewTitleService(store, gateway.DefaultModel))

	var limiter *service.RateLimiter
	if platform.Redis != nil {
		limit := 20
		if v := os.Getenv("CHAT_RATE_LIMIT"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		limiter = service.NewRateLimiter(platform.Redis, limit, time.Minute)
	}

	v1 := r.Group("/v1")
	{
		user := controller.NewUserController(service.NewUserService(store))
		v1.POST("/user/register", user.Register)
		v1.POST("/user/login", user.Login)

		//Refresh the token
		v1.POST("/token/refresh", auth.Refresh)

		// Chat relay: anonymous callers are allowed, identity travels in the body.
		chat := controller.NewChatController(chatService, limiter)
		v1.POST("/chat", chat.Chat)
		v1.GET("/chat/history", chat.History)

		// User-authored personas
		agent := controller.NewAgentController(service.NewAgentService(store))
		v1.POST("/agent", TokenAuthMiddleware(), agent.Create)
		v1.GET("/agent", TokenAuthMiddleware(), agent.List)
		v1.GET("/agent/:id", agent.Get)
		v1.PUT("/agent/:id", TokenAuthMiddleware(), agent.Update)
		v1.DELETE("/agent/:id", TokenAuthMiddleware(), agent.Delete)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	c := cron.New()
	c.AddFunc("10 4 * * *", func() {
		service.PurgeStaleConversations(store)
	})
	c.Start()

	port := os.Getenv("PORT")
	r.Run(":" + port)
}
