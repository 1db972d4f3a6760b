// Package identity хранит локальный профиль пользователя консольного клиента.
package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/globalchat/internal/logger"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Profile — локальный профиль: стабильный id, имя и аватар.
// Id генерируется один раз и переживает перезапуски клиента.
type Profile struct {
	UserID    string `yaml:"user_id"`
	Name      string `yaml:"name"`
	AvatarURL string `yaml:"avatar_url"`
}

// LocalUserID реализует transport.Identity.
func (p *Profile) LocalUserID() string { return p.UserID }

// EnsureProfile загружает профиль из path или создаёт новый с заданным именем.
// Новый профиль сразу сохраняется, чтобы id не менялся между запусками.
func EnsureProfile(path, defaultName string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("identity: parse %s: %w", path, err)
		}
		if p.UserID != "" {
			if p.Name == "" {
				p.Name = defaultName
			}
			return &p, nil
		}
		// Файл есть, но id пустой — пересоздаём
		logger.Infof("identity: %s без user_id, создаю новый профиль", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	p := &Profile{
		UserID: uuid.NewString(),
		Name:   defaultName,
	}
	if err := save(path, p); err != nil {
		return nil, err
	}
	logger.Infof("identity: создан профиль %s (%s)", p.Name, p.UserID)
	return p, nil
}

func save(path string, p *Profile) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("identity: mkdir %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}
