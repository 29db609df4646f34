// internal/storage/kv_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// 持久化键空间：每个键对应数据目录下的一份 JSON 文件
const (
	KeyHistory     = "history"     // 已储存的讲稿
	KeyTemplates   = "templates"   // 自订模板（内置模板不落盘）
	KeyLoggedIn    = "logged_in"   // 登录标记
	KeyProfile     = "profile"     // 个人档案
	KeyCommunity   = "community"   // 社群讲稿列表
	KeyCollections = "collections" // 收藏的社群讲稿 id 集合
	KeyRecords     = "records"     // 演练纪录
	KeyUserID      = "user_id"     // 稳定匿名标识
)

// KVStore 提供键值式 JSON 文件存储
// 每键一把锁，写入走临时文件加原子改名
type KVStore struct {
	BaseDir string

	// 并发控制
	keyLocks sync.Map // key -> *sync.RWMutex
}

// NewKVStore 创建存储服务
func NewKVStore(baseDir string) (*KVStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &KVStore{BaseDir: baseDir}, nil
}

// getKeyLock 获取键对应的锁
func (s *KVStore) getKeyLock(key string) *sync.RWMutex {
	value, _ := s.keyLocks.LoadOrStore(key, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (s *KVStore) pathFor(key string) string {
	return filepath.Join(s.BaseDir, key+".json")
}

// Set 序列化并写入指定键
func (s *KVStore) Set(key string, value interface{}) error {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	fullPath := s.pathFor(key)

	lock := s.getKeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// 原子性文件写入
	tempPath := fullPath + ".tmp"

	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			fmt.Printf("警告: 改名失败后清理临时文件失败 %s: %v\n", tempPath, removeErr)
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	return nil
}

// Get 读取并解析指定键，键不存在时返回 false 且不视为错误
func (s *KVStore) Get(key string, out interface{}) (bool, error) {
	fullPath := s.pathFor(key)

	lock := s.getKeyLock(key)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("读取文件失败: %w", err)
	}

	if err := json.Unmarshal(content, out); err != nil {
		return false, fmt.Errorf("解析JSON失败: %w", err)
	}

	return true, nil
}

// Has 检查键是否存在
func (s *KVStore) Has(key string) bool {
	_, err := os.Stat(s.pathFor(key))
	return err == nil
}

// Delete 删除指定键
func (s *KVStore) Delete(key string) error {
	fullPath := s.pathFor(key)

	lock := s.getKeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("键不存在: %s", key)
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	return nil
}
