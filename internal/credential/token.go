package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// 还没有保存过token，需要先授权
var ErrNoToken = errors.New("no saved oauth token")

// OAuth token持久化
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
	Clear() error // 删除已保存的token，没有时不报错
}

// 以JSON文件保存token
type FileTokenStore struct {
	Path string
}

func (f FileTokenStore) Load() (*oauth2.Token, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer file.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(file).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tok, nil
}

func (f FileTokenStore) Save(tok *oauth2.Token) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	file, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(tok)
}

func (f FileTokenStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// 以keyring条目保存token
type KeyringTokenStore struct {
	Store *Store
	Key   string
}

func (k KeyringTokenStore) Load() (*oauth2.Token, error) {
	raw, err := k.Store.Get(k.Key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		return nil, fmt.Errorf("decode token %q: %w", k.Key, err)
	}
	return tok, nil
}

func (k KeyringTokenStore) Save(tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return k.Store.Set(k.Key, string(b))
}

func (k KeyringTokenStore) Clear() error {
	if err := k.Store.Delete(k.Key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// 包装TokenSource，token刷新后写回存储
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore
	last  string
}

// token刷新后保存，下次运行不用过期的token
func PersistingTokenSource(base oauth2.TokenSource, store TokenStore, current *oauth2.Token) oauth2.TokenSource {
	last := ""
	if current != nil {
		last = current.AccessToken
	}
	return &persistingSource{base: base, store: store, last: last}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
