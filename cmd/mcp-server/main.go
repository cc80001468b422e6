package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YKarmar/JobDigest/internal/config"
	"github.com/YKarmar/JobDigest/internal/credential"
	"github.com/YKarmar/JobDigest/internal/mcpserver"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.ResolveSecrets(&credential.Lazy{FileDir: cfg.Credentials.FileDir}); err != nil {
		log.Fatalf("读取密钥失败: %v", err)
	}
	if cfg.IMAP.Host == "" || cfg.IMAP.Email == "" {
		log.Fatalf("请在配置中设置 imap.email 和 imap.host")
	}

	source := mcpserver.NewIMAPSource(mcpserver.IMAPConfig{
		Host:     cfg.IMAP.Host,
		Email:    cfg.IMAP.Email,
		Password: cfg.IMAP.Password,
		UseTLS:   cfg.IMAP.UseTLS,
		Folders:  cfg.IMAP.Folders,
	})
	server := mcpserver.New(source, cfg.MCP.APIKey, cfg.Mailbox.MaxMessages)

	srv := &http.Server{
		Addr:         cfg.MCP.Listen,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("MCP服务器启动在 %s (邮箱 %s, 文件夹 %v)", srv.Addr, cfg.IMAP.Email, cfg.IMAP.Folders)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("关闭服务器出错: %v", err)
	}
}
