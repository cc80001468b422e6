package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "jobdigest"

	// 配置值以此开头表示引用keyring条目
	RefPrefix = "keyring:"
)

// 凭据存储，包一层方便测试时替换成内存keyring
type Store struct {
	ring keyring.Keyring
}

// 打开系统keyring，没有桌面keyring时用 fileDir 下的加密文件
func Open(fileDir string) (*Store, error) {
	if fileDir == "" {
		fileDir = "~/.config/jobdigest/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("jobdigest-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// 读取凭据
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// 保存凭据
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// 删除凭据
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// 不是keyring引用时原样返回
func (s *Store) Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	key := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if key == "" {
		return "", fmt.Errorf("empty keyring reference")
	}
	return s.Get(key)
}

// 第一次遇到keyring引用时才打开keyring
type Lazy struct {
	FileDir string
	open    func(fileDir string) (*Store, error)
	store   *Store
}

func (l *Lazy) Store() (*Store, error) {
	if l.store == nil {
		open := l.open
		if open == nil {
			open = Open
		}
		s, err := open(l.FileDir)
		if err != nil {
			return nil, err
		}
		l.store = s
	}
	return l.store, nil
}

func (l *Lazy) Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	s, err := l.Store()
	if err != nil {
		return "", err
	}
	return s.Resolve(value)
}
