package exporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/YKarmar/JobDigest/internal/types"
)

// 列表字段在单元格中的分隔符
const listSeparator = "; "

// CSV导出器
type CSVExporter struct {
	filename string
	now      func() time.Time
}

// 创建CSV导出器
func NewCSVExporter(filename string) *CSVExporter {
	return &CSVExporter{
		filename: filename,
		now:      time.Now,
	}
}

func (ce *CSVExporter) Filename() string {
	return ce.filename
}

// 导出本次运行的招聘信息到CSV文件
func (ce *CSVExporter) ExportPostings(d types.Digest) error {
	file, err := os.Create(ce.filename)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// 写入CSV头部
	headers := []string{
		"company_name",
		"position",
		"application_link",
		"application_deadline",
		"requirements",
		"other",
		"run_date",
	}

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write CSV headers: %w", err)
	}

	runDate := d.Date.Format("2006-01-02")
	for _, p := range d.Postings {
		record := []string{
			p.CompanyName,
			p.Position,
			p.ApplicationLink,
			p.ApplicationDeadline,
			strings.Join(p.Requirements, listSeparator),
			strings.Join(p.Other, listSeparator),
			runDate,
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}

// 导出统计信息到CSV文件，返回文件路径
func (ce *CSVExporter) ExportStatistics(stats types.RunStats, postings []types.JobPosting) (string, error) {
	statsFile := filepath.Join(filepath.Dir(ce.filename),
		"digest_statistics_"+ce.now().Format("20060102_150405")+".csv")

	file, err := os.Create(statsFile)
	if err != nil {
		return "", fmt.Errorf("create statistics file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// 各阶段计数
	rows := [][]string{
		{"stage", "count"},
		{"listed", strconv.Itoa(stats.Listed)},
		{"filtered", strconv.Itoa(stats.Filtered)},
		{"triaged", strconv.Itoa(stats.Triaged)},
		{"fetched", strconv.Itoa(stats.Fetched)},
		{"fetch_failures", strconv.Itoa(stats.FetchFailures)},
		{"empty_bodies", strconv.Itoa(stats.EmptyBodies)},
		{"extracted", strconv.Itoa(stats.Extracted)},
		{"false_positives", strconv.Itoa(stats.FalsePositives)},
		{"rejected", strconv.Itoa(stats.Rejected)},
		{},
		{"company_name", "postings"},
	}
	for _, c := range topCompanies(postings, 10) {
		rows = append(rows, []string{c.name, strconv.Itoa(c.count)})
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write statistics: %w", err)
	}
	return statsFile, nil
}

type companyStats struct {
	name  string
	count int
}

// 按招聘信息数量排序的公司，"Not Found" 不计入
func topCompanies(postings []types.JobPosting, limit int) []companyStats {
	companyCount := make(map[string]int)
	for _, p := range postings {
		if p.CompanyName != "" && p.CompanyName != types.NotFound {
			companyCount[p.CompanyName]++
		}
	}

	companies := make([]companyStats, 0, len(companyCount))
	for company, count := range companyCount {
		companies = append(companies, companyStats{company, count})
	}
	sort.Slice(companies, func(i, j int) bool {
		if companies[i].count != companies[j].count {
			return companies[i].count > companies[j].count
		}
		return companies[i].name < companies[j].name
	})

	if len(companies) > limit {
		companies = companies[:limit]
	}
	return companies
}

// 打印简要统计信息
func PrintStatistics(stats types.RunStats, d types.Digest) {
	fmt.Printf("\n=== 招聘邮件统计 (%s) ===\n", d.Date.Format("2006-01-02"))
	fmt.Printf("邮箱中的候选邮件: %d 封\n", stats.Listed)
	fmt.Printf("规则过滤: %d 封\n", stats.Filtered)
	fmt.Printf("主题粗筛保留: %d 封\n", stats.Triaged)
	fmt.Printf("正文获取: 成功 %d 封, 失败 %d 封, 空正文 %d 封\n", stats.Fetched, stats.FetchFailures, stats.EmptyBodies)
	fmt.Printf("结构化提取: 有效 %d 条, 误报 %d 条, 丢弃 %d 条\n", stats.Extracted, stats.FalsePositives, stats.Rejected)

	if d.Empty() {
		fmt.Println("\n没有找到招聘相关的邮件")
		return
	}

	companies := topCompanies(d.Postings, 5)
	fmt.Printf("\n涉及公司数量: %d 家\n", len(topCompanies(d.Postings, len(d.Postings))))
	if len(companies) > 0 {
		fmt.Println("\n招聘信息最多的公司:")
		for _, c := range companies {
			fmt.Printf("  %s: %d 条\n", c.name, c.count)
		}
	}
}
