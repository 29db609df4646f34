// internal/services/profile_service.go
package services

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/storage"
	"github.com/Corphon/ElePitch/internal/utils"
)

// profileLinkBase 档案分享链接的基础地址，二维码编码该链接
const profileLinkBase = "https://elepitch.app/user/"

// ProfileService 个人档案与登录能力标记
// 登录是一个布尔能力位而非完整认证：打开后解除储存配额并允许分享
type ProfileService struct {
	store        *storage.KVStore
	qrServiceURL string

	mu       sync.RWMutex
	profile  *models.UserProfile
	loggedIn bool
	userID   string

	// 登录成功后触发的回调，用于补完被配额挡下的储存
	loginHooks []func()
}

// NewProfileService 创建档案服务，加载持久化状态并确保匿名标识存在
func NewProfileService(store *storage.KVStore, qrServiceURL string) (*ProfileService, error) {
	s := &ProfileService{store: store, qrServiceURL: qrServiceURL}

	profile := models.DefaultProfile()
	if _, err := store.Get(storage.KeyProfile, profile); err != nil {
		return nil, fmt.Errorf("加载个人档案失败: %w", err)
	}
	s.profile = profile

	if _, err := store.Get(storage.KeyLoggedIn, &s.loggedIn); err != nil {
		return nil, fmt.Errorf("加载登录状态失败: %w", err)
	}

	// 匿名标识首次启动时生成，之后保持稳定
	found, err := store.Get(storage.KeyUserID, &s.userID)
	if err != nil {
		return nil, fmt.Errorf("加载用户标识失败: %w", err)
	}
	if !found || s.userID == "" {
		s.userID = uuid.NewString()
		if err := store.Set(storage.KeyUserID, s.userID); err != nil {
			return nil, fmt.Errorf("保存用户标识失败: %w", err)
		}
	}
	return s, nil
}

// GetProfile 返回档案副本
func (s *ProfileService) GetProfile() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}

// UpdateProfile 整体更新档案
func (s *ProfileService) UpdateProfile(profile *models.UserProfile) (*models.UserProfile, error) {
	if profile == nil {
		return nil, apperrors.NewValidationError("檔案內容不可為空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := profile.Clone()
	if updated.Avatar == "" {
		updated.Avatar = models.DefaultAvatar
	}
	for i := range updated.CustomFields {
		if updated.CustomFields[i].ID == "" {
			updated.CustomFields[i].ID = "cf-" + uuid.NewString()
		}
	}

	previous := s.profile
	s.profile = updated
	if err := s.store.Set(storage.KeyProfile, updated); err != nil {
		s.profile = previous
		return nil, err
	}
	return updated.Clone(), nil
}

// AddCustomField 新增一个自订档案栏位
func (s *ProfileService) AddCustomField(label, value string) (*models.UserProfile, error) {
	if strings.TrimSpace(label) == "" {
		return nil, apperrors.NewValidationError("欄位名稱不可為空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.profile.Clone()
	updated.CustomFields = append(updated.CustomFields, models.CustomField{
		ID:    "cf-" + uuid.NewString(),
		Label: label,
		Value: value,
	})

	previous := s.profile
	s.profile = updated
	if err := s.store.Set(storage.KeyProfile, updated); err != nil {
		s.profile = previous
		return nil, err
	}
	return updated.Clone(), nil
}

// RemoveCustomField 删除自订档案栏位
func (s *ProfileService) RemoveCustomField(fieldID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.profile.Clone()
	kept := updated.CustomFields[:0]
	removed := false
	for _, f := range updated.CustomFields {
		if f.ID == fieldID {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	if !removed {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到欄位: %s", fieldID), nil)
	}
	updated.CustomFields = kept

	previous := s.profile
	s.profile = updated
	if err := s.store.Set(storage.KeyProfile, updated); err != nil {
		s.profile = previous
		return nil, err
	}
	return updated.Clone(), nil
}

// IsLoggedIn 返回登录能力位
func (s *ProfileService) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// OnLogin 注册登录成功后的回调
func (s *ProfileService) OnLogin(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginHooks = append(s.loginHooks, hook)
}

// Login 打开登录能力位并触发回调（如补完被挡下的储存）
func (s *ProfileService) Login() error {
	s.mu.Lock()
	if s.loggedIn {
		s.mu.Unlock()
		return nil
	}
	s.loggedIn = true
	if err := s.store.Set(storage.KeyLoggedIn, true); err != nil {
		s.loggedIn = false
		s.mu.Unlock()
		return err
	}
	hooks := make([]func(), len(s.loginHooks))
	copy(hooks, s.loginHooks)
	s.mu.Unlock()

	utils.GetLogger().Info("用户已登录", nil)

	// 回调在锁外执行，避免与服务自身的锁互相嵌套
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// Logout 关闭登录能力位
func (s *ProfileService) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedIn {
		return nil
	}
	s.loggedIn = false
	if err := s.store.Set(storage.KeyLoggedIn, false); err != nil {
		s.loggedIn = true
		return err
	}
	return nil
}

// UserID 返回稳定匿名标识
func (s *ProfileService) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// QRCodeURL 生成指向个人档案链接的二维码图片地址
func (s *ProfileService) QRCodeURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := profileLinkBase + s.userID
	return fmt.Sprintf("%s?size=250x250&data=%s", s.qrServiceURL, url.QueryEscape(link))
}
