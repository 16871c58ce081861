package service

import (
	"errors"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/auth"
	"github.com/asima2006/Soinech-Chat-App/internal/config"
	"github.com/asima2006/Soinech-Chat-App/internal/models"

	"gorm.io/gorm"
)

// UserService 封装注册与登录；登录签发的 token 用于 WebSocket 鉴权。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// RegisterResult 注册成功后返回的数据。
type RegisterResult struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// Register 注册新用户，返回用户 ID 和用户名。
func (s *UserService) Register(username, password string) (*RegisterResult, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, PasswordHash: hash}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &RegisterResult{ID: user.ID, Username: user.Username}, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login 校验用户名密码并签发 access token。
func (s *UserService) Login(username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	ttl := time.Duration(s.cfg.TokenTTLHours) * time.Hour
	token, err := auth.GenerateAccessToken(user.ID, s.cfg.JWTSecret, ttl)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}
