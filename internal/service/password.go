package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost bcrypt 工作因子，固定为 10
const PasswordCost = bcrypt.DefaultCost

// PasswordHasher 口令哈希与校验
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify 口令不匹配时返回 (false, nil)，只有存储的哈希损坏才返回错误
	Verify(plain, hash string) (bool, error)
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher 创建 bcrypt 哈希器
func NewBcryptHasher() PasswordHasher {
	return &bcryptHasher{cost: PasswordCost}
}

func (h *bcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (h *bcryptHasher) Verify(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}
