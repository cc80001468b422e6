package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YKarmar/JobDigest/internal/llm"
)

const (
	MailboxGmail = "gmail"
	MailboxMCP   = "mcp"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"

	SMTPStartTLS = "starttls"
	SMTPTLS      = "tls"
	SMTPNone     = "none"
)

type Config struct {
	Mailbox struct {
		Provider        string `yaml:"provider"` // gmail 或 mcp
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		TokenStore      string `yaml:"token_store"` // file 或 keyring
		LookbackDays    int    `yaml:"lookback_days"`
		MaxMessages     int    `yaml:"max_messages"`
		Start           string `yaml:"start"` // YYYY-MM-DD or RFC3339，设置后覆盖 lookback_days
	} `yaml:"mailbox"`
	IMAP struct {
		Host     string   `yaml:"host"`
		Email    string   `yaml:"email"`
		Password string   `yaml:"password"`
		UseTLS   bool     `yaml:"use_tls"`
		Provider string   `yaml:"provider"`
		Folders  []string `yaml:"folders"`
	} `yaml:"imap"`
	MCP struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Listen   string `yaml:"listen"`
	} `yaml:"mcp"`
	LLM struct {
		Provider          string  `yaml:"provider"`
		APIBase           string  `yaml:"api_base"`
		APIKey            string  `yaml:"api_key"`
		Model             string  `yaml:"model"`
		Temperature       float64 `yaml:"temperature"`
		MaxTokens         int     `yaml:"max_tokens"`
		TimeoutSec        int     `yaml:"timeout_sec"`
		RequestsPerMinute int     `yaml:"requests_per_minute"`
		MaxBodyChars      int     `yaml:"max_body_chars"`
	} `yaml:"llm"`
	Digest struct {
		Subject string   `yaml:"subject"`
		From    string   `yaml:"from"`
		To      []string `yaml:"to"`
		SMTP    struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			Security string `yaml:"security"` // starttls, tls, none
		} `yaml:"smtp"`
	} `yaml:"digest"`
	Filters struct {
		IgnoreSenders         []string `yaml:"ignore_senders"`
		IgnoreSubjectKeywords []string `yaml:"ignore_subject_keywords"`
	} `yaml:"filters"`
	Export struct {
		File string `yaml:"file"`
	} `yaml:"export"`
	Monitoring struct {
		PosthogAPIKey   string `yaml:"posthog_api_key"`
		PosthogEndpoint string `yaml:"posthog_endpoint"`
	} `yaml:"monitoring"`
	Credentials struct {
		FileDir string `yaml:"file_dir"`
	} `yaml:"credentials"`
}

// 解析 keyring:<key> 引用
type SecretResolver interface {
	Resolve(value string) (string, error)
}

// Load 加载配置文件并替换环境变量
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse 解析YAML内容，补全默认值并校验
func Parse(b []byte) (*Config, error) {
	// 替换环境变量 ${VAR_NAME} 格式
	content := expandEnvVars(string(b))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Mailbox.Provider = strings.ToLower(c.Mailbox.Provider)
	if c.Mailbox.Provider == "" {
		c.Mailbox.Provider = MailboxGmail
	}
	if c.Mailbox.CredentialsFile == "" {
		c.Mailbox.CredentialsFile = "credentials.json"
	}
	if c.Mailbox.TokenFile == "" {
		c.Mailbox.TokenFile = "token.json"
	}
	if c.Mailbox.TokenStore == "" {
		c.Mailbox.TokenStore = TokenStoreFile
	}
	// 默认只看最近一天
	if c.Mailbox.LookbackDays <= 0 {
		c.Mailbox.LookbackDays = 1
	}
	if c.Mailbox.MaxMessages <= 0 {
		c.Mailbox.MaxMessages = 100
	}

	// IMAP配置只给 mcp-server 使用
	if c.IMAP.Email != "" {
		if c.IMAP.Provider == "" {
			c.IMAP.Provider = inferEmailProvider(c.IMAP.Email)
		}
		if c.IMAP.Host == "" {
			c.IMAP.Host = inferIMAPHost(c.IMAP.Email)
			if c.IMAP.Host != "" {
				c.IMAP.UseTLS = true
			}
		}
	}
	if len(c.IMAP.Folders) == 0 {
		c.IMAP.Folders = []string{"INBOX"}
	}

	if c.MCP.Listen == "" {
		c.MCP.Listen = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = llm.ProviderOpenAI
	}

	if c.Digest.Subject == "" {
		c.Digest.Subject = "Internship & job digest"
	}
	if c.Digest.SMTP.Host == "" {
		c.Digest.SMTP.Host = "smtp.gmail.com"
	}
	if c.Digest.SMTP.Security == "" {
		c.Digest.SMTP.Security = SMTPStartTLS
	}
	if c.Digest.SMTP.Port == 0 {
		c.Digest.SMTP.Port = 587
		if c.Digest.SMTP.Security == SMTPTLS {
			c.Digest.SMTP.Port = 465
		}
	}
	if c.Digest.SMTP.Username == "" {
		c.Digest.SMTP.Username = c.Digest.From
	}

	// 默认导出文件
	if c.Export.File == "" {
		c.Export.File = "postings.csv"
	}
}

func (c *Config) validate() error {
	switch c.Mailbox.Provider {
	case MailboxGmail:
	case MailboxMCP:
		if c.MCP.Endpoint == "" {
			return fmt.Errorf("mcp.endpoint is required when mailbox.provider is %q", MailboxMCP)
		}
	default:
		return fmt.Errorf("unknown mailbox.provider %q", c.Mailbox.Provider)
	}

	switch c.Mailbox.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		return fmt.Errorf("unknown mailbox.token_store %q", c.Mailbox.TokenStore)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	switch c.Digest.SMTP.Security {
	case SMTPStartTLS, SMTPTLS, SMTPNone:
	default:
		return fmt.Errorf("unknown digest.smtp.security %q", c.Digest.SMTP.Security)
	}

	if c.Mailbox.Start != "" {
		if _, ok := parseDate(c.Mailbox.Start); !ok {
			return fmt.Errorf("mailbox.start: cannot parse %q", c.Mailbox.Start)
		}
	}
	return nil
}

// ResolveSecrets 把密钥字段里的 keyring 引用替换成实际值
func (c *Config) ResolveSecrets(r SecretResolver) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"llm.api_key", &c.LLM.APIKey},
		{"imap.password", &c.IMAP.Password},
		{"mcp.api_key", &c.MCP.APIKey},
		{"digest.smtp.password", &c.Digest.SMTP.Password},
		{"monitoring.posthog_api_key", &c.Monitoring.PosthogAPIKey},
	}
	for _, f := range fields {
		v, err := r.Resolve(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = v
	}
	return nil
}

// LLMConfig 转换为 llm 包的客户端配置
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:          c.LLM.Provider,
		APIBase:           c.LLM.APIBase,
		APIKey:            c.LLM.APIKey,
		Model:             c.LLM.Model,
		Temperature:       c.LLM.Temperature,
		MaxTokens:         c.LLM.MaxTokens,
		TimeoutSec:        c.LLM.TimeoutSec,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
	}
}

// Since 返回本次扫描的起始时间：显式的 start 优先，否则往前推 lookback_days 天
func (c *Config) Since(now time.Time) time.Time {
	def := now.AddDate(0, 0, -c.Mailbox.LookbackDays)
	return ParseDateLoose(c.Mailbox.Start, def)
}

// expandEnvVars 替换 ${VAR_NAME} 格式的环境变量
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1] // 去掉 ${ 和 }
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // 如果环境变量不存在，保持原样
	})
}

// inferEmailProvider 根据邮箱地址推断提供商
func inferEmailProvider(email string) string {
	email = strings.ToLower(email)

	if strings.Contains(email, "@gmail.com") || strings.Contains(email, "@googlemail.com") {
		return "gmail"
	}
	if strings.Contains(email, "@outlook.com") || strings.Contains(email, "@hotmail.com") || strings.Contains(email, "@live.com") {
		return "outlook"
	}
	if strings.Contains(email, "@yahoo.com") || strings.Contains(email, "@yahoo.co.") {
		return "yahoo"
	}
	if strings.Contains(email, "@qq.com") || strings.Contains(email, "@163.com") || strings.Contains(email, "@126.com") {
		return "chinese"
	}

	return "custom"
}

// inferIMAPHost 根据邮箱地址推断IMAP主机
func inferIMAPHost(email string) string {
	switch inferEmailProvider(email) {
	case "gmail":
		return "imap.gmail.com:993"
	case "outlook":
		return "outlook.office365.com:993"
	case "yahoo":
		return "imap.mail.yahoo.com:993"
	case "chinese":
		// qq.com -> imap.qq.com
		return "imap." + email[strings.LastIndex(email, "@")+1:] + ":993"
	default:
		return "" // 需要手动配置
	}
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func ParseDateLoose(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	if t, ok := parseDate(s); ok {
		return t
	}
	return def
}
