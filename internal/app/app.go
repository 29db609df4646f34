// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/Corphon/ElePitch/internal/capture"
	"github.com/Corphon/ElePitch/internal/config"
	"github.com/Corphon/ElePitch/internal/di"
	"github.com/Corphon/ElePitch/internal/llm"
	_ "github.com/Corphon/ElePitch/internal/llm/providers/google"
	_ "github.com/Corphon/ElePitch/internal/llm/providers/openai"
	"github.com/Corphon/ElePitch/internal/services"
	"github.com/Corphon/ElePitch/internal/storage"
	"github.com/Corphon/ElePitch/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册进容器
// 顺序：存储 → 生成 → 守卫/采集 → 模板/档案 → 工作流 → 分享/纪录
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 存储
	store, err := storage.NewKVStore(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	container.Register("store", store)

	// 2. 生成服务（提供商缺 API 密钥时保持未就绪，首次调用时报错）
	genService := services.NewGenService(nil)
	if cfg.LLMConfig["api_key"] != "" {
		provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
		if err != nil {
			return fmt.Errorf("初始化生成提供商失败: %w", err)
		}
		genService.SetProvider(provider)
	} else {
		utils.GetLogger().Warn("未配置 API 密钥，生成功能不可用", map[string]interface{}{
			"provider": cfg.LLMProvider,
		})
	}
	container.Register("gen", genService)

	// 3. 任务守卫与媒体采集
	taskGuard := services.NewTaskGuard()
	container.Register("task_guard", taskGuard)

	recorder := capture.NewUnavailableRecorder()
	container.Register("recorder", recorder)

	// 4. 模板与档案
	templateService, err := services.NewTemplateService(store, genService)
	if err != nil {
		return fmt.Errorf("初始化模板服务失败: %w", err)
	}
	container.Register("template", templateService)

	profileService, err := services.NewProfileService(store, cfg.QRServiceURL)
	if err != nil {
		return fmt.Errorf("初始化档案服务失败: %w", err)
	}
	container.Register("profile", profileService)

	// 5. 工作流
	pitchService, err := services.NewPitchService(store, genService, templateService, profileService, taskGuard)
	if err != nil {
		return fmt.Errorf("初始化工作流服务失败: %w", err)
	}
	container.Register("pitch", pitchService)

	// 6. 分享与纪录
	shareService, err := services.NewShareService(store, genService, pitchService, profileService, taskGuard)
	if err != nil {
		return fmt.Errorf("初始化分享服务失败: %w", err)
	}
	container.Register("share", shareService)

	recordService, err := services.NewRecordService(store, genService, recorder, taskGuard)
	if err != nil {
		return fmt.Errorf("初始化纪录服务失败: %w", err)
	}
	container.Register("record", recordService)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"services": len(container.GetNames()),
	})
	return nil
}
