// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ElePitch/internal/config"
	"github.com/Corphon/ElePitch/internal/di"
	"github.com/Corphon/ElePitch/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	templateService, ok := container.Get("template").(*services.TemplateService)
	if !ok {
		return nil, fmt.Errorf("模板服务未正确初始化")
	}

	pitchService, ok := container.Get("pitch").(*services.PitchService)
	if !ok {
		return nil, fmt.Errorf("工作流服务未正确初始化")
	}

	shareService, ok := container.Get("share").(*services.ShareService)
	if !ok {
		return nil, fmt.Errorf("分享服务未正确初始化")
	}

	recordService, ok := container.Get("record").(*services.RecordService)
	if !ok {
		return nil, fmt.Errorf("纪录服务未正确初始化")
	}

	profileService, ok := container.Get("profile").(*services.ProfileService)
	if !ok {
		return nil, fmt.Errorf("档案服务未正确初始化")
	}

	taskGuard, ok := container.Get("task_guard").(*services.TaskGuard)
	if !ok {
		return nil, fmt.Errorf("任务守卫未正确初始化")
	}

	handler := NewHandler(
		templateService,
		pitchService,
		shareService,
		recordService,
		profileService,
		taskGuard,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// WebSocket 支持：任务状态实时推送
	r.GET("/ws/tasks", handler.TaskStatusWebSocket)

	// ===============================
	// API路由组
	// ===============================
	apiGroup := r.Group("/api")
	{
		// 模板
		templatesGroup := apiGroup.Group("/templates")
		{
			templatesGroup.GET("", handler.GetTemplates)
			templatesGroup.POST("", handler.CreateTemplate)
			templatesGroup.POST("/suggest", handler.SuggestTemplateStructure)
			templatesGroup.GET("/:id", handler.GetTemplate)
			templatesGroup.PUT("/:id", handler.UpdateTemplate)
			templatesGroup.DELETE("/:id", handler.DeleteTemplate)
			templatesGroup.POST("/:id/reorder", handler.ReorderTemplateFields)
		}

		// 工作流会话
		sessionGroup := apiGroup.Group("/session")
		{
			sessionGroup.GET("", handler.GetSession)
			sessionGroup.POST("/template", handler.SelectTemplate)
			sessionGroup.POST("/duration", handler.SetDuration)
			sessionGroup.POST("/input", handler.SetFieldInput)
			sessionGroup.POST("/topic", handler.SetSearchTopic)
			sessionGroup.POST("/generate", handler.GeneratePitch)
			sessionGroup.POST("/practice", handler.SetPracticedPitch)
			sessionGroup.POST("/feedback", handler.GetFeedback)
			sessionGroup.POST("/save", handler.SavePitch)
			sessionGroup.POST("/reset", handler.ResetSession)
		}

		// 历史讲稿
		pitchesGroup := apiGroup.Group("/pitches")
		{
			pitchesGroup.GET("", handler.GetPitches)
			pitchesGroup.POST("/:id/load", handler.LoadPitch)
			pitchesGroup.DELETE("/:id", handler.DeletePitch)
		}

		// 社群分享
		shareGroup := apiGroup.Group("/share")
		{
			shareGroup.POST("", handler.InitiateShare)
			shareGroup.GET("/candidate", handler.GetShareCandidate)
			shareGroup.POST("/confirm", handler.ConfirmShare)
			shareGroup.POST("/cancel", handler.CancelShare)
		}

		communityGroup := apiGroup.Group("/community")
		{
			communityGroup.GET("", handler.GetCommunityPitches)
			communityGroup.GET("/:id", handler.GetCommunityPitch)
			communityGroup.POST("/:id/collect", handler.ToggleCollection)
		}
		apiGroup.GET("/collections", handler.GetCollections)

		// 演练纪录
		recordsGroup := apiGroup.Group("/records")
		{
			recordsGroup.GET("", handler.GetRecords)
			recordsGroup.POST("", handler.NewRecord)
			recordsGroup.GET("/editing", handler.GetEditingRecord)
			recordsGroup.POST("/editing/close", handler.CloseRecordEditor)
			recordsGroup.PATCH("/editing", handler.UpdateRecord)
			recordsGroup.POST("/editing/audio", handler.AttachRecordAudio)
			recordsGroup.POST("/editing/photo", handler.AttachRecordPhoto)
			recordsGroup.POST("/editing/transcribe", handler.TranscribeRecord)
			recordsGroup.POST("/editing/evaluate", handler.EvaluateRecord)
			recordsGroup.POST("/editing/score", handler.SetManualScore)
			recordsGroup.POST("/editing/topic-from-pitch", handler.ImportRecordTopic)
			recordsGroup.POST("/:id/open", handler.OpenRecord)
			recordsGroup.DELETE("/:id", handler.DeleteRecord)
		}

		// 个人档案
		profileGroup := apiGroup.Group("/profile")
		{
			profileGroup.GET("", handler.GetProfile)
			profileGroup.PUT("", handler.UpdateProfile)
			profileGroup.POST("/fields", handler.AddProfileField)
			profileGroup.DELETE("/fields/:id", handler.RemoveProfileField)
			profileGroup.POST("/login", handler.Login)
			profileGroup.POST("/logout", handler.Logout)
		}

		// 任务状态
		apiGroup.GET("/tasks/status", handler.GetTaskStatus)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
