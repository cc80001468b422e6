package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YKarmar/JobDigest/internal/analyzer"
	"github.com/YKarmar/JobDigest/internal/config"
	"github.com/YKarmar/JobDigest/internal/credential"
	"github.com/YKarmar/JobDigest/internal/digest"
	"github.com/YKarmar/JobDigest/internal/exporter"
	"github.com/YKarmar/JobDigest/internal/llm"
	"github.com/YKarmar/JobDigest/internal/mailbox"
	"github.com/YKarmar/JobDigest/internal/monitor"
	"github.com/YKarmar/JobDigest/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	days := flag.Int("days", 0, "look back this many days (overrides mailbox.lookback_days)")
	dryRun := flag.Bool("dry-run", false, "print the digest instead of sending it")
	exportFile := flag.String("export", "", "CSV export path (overrides export.file)")
	reauth := flag.Bool("reauth", false, "discard the saved Gmail token and authorize again")
	flag.Parse()

	fmt.Println("=== JobDigest 招聘邮件摘要工具 ===")
	fmt.Println("正在加载配置...")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *days > 0 {
		cfg.Mailbox.LookbackDays = *days
		cfg.Mailbox.Start = ""
	}
	if *exportFile != "" {
		cfg.Export.File = *exportFile
	}

	secrets := &credential.Lazy{FileDir: cfg.Credentials.FileDir}
	if err := cfg.ResolveSecrets(secrets); err != nil {
		log.Fatalf("读取密钥失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 15*time.Minute)
	defer cancel()

	// 2. 邮箱
	mb, err := openMailbox(ctx, cfg, secrets, *reauth)
	if err != nil {
		log.Fatalf("连接邮箱失败: %v", err)
	}

	// 3. 模型客户端
	gen, err := llm.New(cfg.LLMConfig())
	if err != nil {
		log.Fatalf("创建LLM客户端失败: %v", err)
	}

	p := pipeline.New(
		mb,
		mailbox.Filter{
			IgnoreSenders:         cfg.Filters.IgnoreSenders,
			IgnoreSubjectKeywords: cfg.Filters.IgnoreSubjectKeywords,
		},
		analyzer.NewTriager(gen),
		analyzer.NewExtractor(gen, cfg.LLM.MaxBodyChars),
	)
	mon := monitor.New(cfg.Monitoring.PosthogAPIKey, cfg.Monitoring.PosthogEndpoint)

	// 4. 运行
	since := cfg.Since(time.Now())
	fmt.Printf("正在扫描 %s 之后的邮件...\n", since.Format("2006-01-02"))

	report, runErr := p.Run(ctx, since)
	event := monitor.RunEvent{
		RunID:   report.RunID,
		Outcome: report.Digest.Outcome,
		Stats:   report.Stats,
		Latency: report.Latency(),
		Failed:  runErr != nil,
	}
	if runErr != nil {
		event.FailReason = runErr.Error()
	}
	if err := mon.RunFinished(event); err != nil {
		log.Printf("上报运行数据失败: %v", err)
	}
	if runErr != nil {
		// 失败的运行不能发出"没有找到"的摘要
		log.Fatalf("运行失败: %v", runErr)
	}

	// 5. 统计与导出
	exporter.PrintStatistics(report.Stats, report.Digest)

	csvExporter := exporter.NewCSVExporter(cfg.Export.File)
	fmt.Printf("\n正在导出结果到 %s...\n", csvExporter.Filename())
	if err := csvExporter.ExportPostings(report.Digest); err != nil {
		log.Printf("导出CSV失败: %v", err)
	} else if statsFile, err := csvExporter.ExportStatistics(report.Stats, report.Digest.Postings); err != nil {
		log.Printf("导出统计信息失败: %v", err)
	} else {
		fmt.Printf("统计信息已导出到: %s\n", statsFile)
	}

	// 6. 渲染并发送摘要
	rendered, err := digest.NewRenderer(cfg.Digest.Subject).Render(report.Digest)
	if err != nil {
		log.Fatalf("渲染摘要失败: %v", err)
	}

	if *dryRun {
		if err := digest.Preview(os.Stdout, rendered); err != nil {
			log.Fatalf("输出预览失败: %v", err)
		}
		return
	}

	if len(cfg.Digest.To) == 0 {
		log.Fatalf("digest.to is required unless -dry-run is set")
	}
	sender := digest.NewSMTPSender(digest.SMTPConfig{
		Host:     cfg.Digest.SMTP.Host,
		Port:     cfg.Digest.SMTP.Port,
		Username: cfg.Digest.SMTP.Username,
		Password: cfg.Digest.SMTP.Password,
		Security: cfg.Digest.SMTP.Security,
	}, cfg.Digest.From, cfg.Digest.To)

	if err := sender.Send(ctx, rendered); err != nil {
		log.Fatalf("发送摘要失败: %v", err)
	}
	fmt.Println("\n=== 摘要已发送 ===")
}

func openMailbox(ctx context.Context, cfg *config.Config, secrets *credential.Lazy, reauth bool) (mailbox.Mailbox, error) {
	switch cfg.Mailbox.Provider {
	case config.MailboxMCP:
		return mailbox.NewMCPMailbox(cfg.MCP.Endpoint, cfg.MCP.APIKey, cfg.Mailbox.MaxMessages), nil
	default:
		var store credential.TokenStore = credential.FileTokenStore{Path: cfg.Mailbox.TokenFile}
		if cfg.Mailbox.TokenStore == config.TokenStoreKeyring {
			ring, err := secrets.Store()
			if err != nil {
				return nil, err
			}
			store = credential.KeyringTokenStore{Store: ring, Key: "gmail-token"}
		}
		if reauth {
			if err := store.Clear(); err != nil {
				return nil, fmt.Errorf("clear saved token: %w", err)
			}
			fmt.Println("已清除保存的Gmail授权，需要重新授权")
		}
		srv, err := mailbox.NewGmailService(ctx, cfg.Mailbox.CredentialsFile, store, promptForCode)
		if err != nil {
			return nil, err
		}
		return mailbox.NewGmailMailbox(srv, cfg.Mailbox.MaxMessages), nil
	}
}

// 首次授权时从终端读取授权码
func promptForCode(authURL string) (string, error) {
	fmt.Printf("请在浏览器中打开以下链接完成授权，然后输入授权码:\n%s\n> ", authURL)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
