// Package report assembles the day's picks into the digest that goes
// out by email, gets archived to disk and is printed to the console.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"campusnews/internal/news"
)

const (
	headerLine  = "美国大学校园资讯 - 个性化推荐日报"
	sectionLine = "【个性化推荐】根据你的性格和兴趣挑出的新闻："
)

type Entry struct {
	Source  string
	Score   int
	Title   string // original English title
	TitleZH string // translated title, falls back to Title
	Link    string
}

type Report struct {
	GeneratedAt time.Time
	Entries     []Entry
}

// Assemble pairs ranked items with their translated titles. zhTitles is
// aligned with items; a missing or blank translation falls back to the
// original English title.
func Assemble(items []news.ScoredItem, zhTitles []string, now time.Time) Report {
	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		zh := item.Title
		if i < len(zhTitles) && strings.TrimSpace(zhTitles[i]) != "" {
			zh = zhTitles[i]
		}
		entries = append(entries, Entry{
			Source:  item.Source,
			Score:   item.Score,
			Title:   item.Title,
			TitleZH: zh,
			Link:    item.Link,
		})
	}
	return Report{GeneratedAt: now, Entries: entries}
}

// Render produces the plain-text digest body.
func (r Report) Render() string {
	lines := []string{
		headerLine,
		"生成时间：" + r.GeneratedAt.Format("2006-01-02 15:04"),
		"",
		sectionLine,
		"",
	}
	for _, e := range r.Entries {
		lines = append(lines,
			fmt.Sprintf("- [%s] (%d 分) %s", e.Source, e.Score, e.TitleZH),
			fmt.Sprintf("    EN: %s", e.Title),
			fmt.Sprintf("    链接: %s", e.Link),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// Subject is the email subject for the day's digest.
func (r Report) Subject() string {
	return "美国大学校报中文日报 - " + r.GeneratedAt.Format("2006-01-02")
}

// WriteFile archives the rendered report under dir and returns the path.
func WriteFile(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("recommendations_%s.txt", r.GeneratedAt.Format("2006-01-02")))
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// PreviewTable renders a console table of the picks. Chinese titles are
// padded by display width so the columns line up in a terminal.
func (r Report) PreviewTable() string {
	rows := [][]string{{"#", "来源", "分数", "标题"}}
	for i, e := range r.Entries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			e.Source,
			fmt.Sprintf("%d", e.Score),
			e.TitleZH,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	for ri, row := range rows {
		for i, cell := range row {
			sb.WriteString(cell)
			if i == len(row)-1 {
				continue
			}
			if pad := widths[i] - runewidth.StringWidth(cell); pad > 0 {
				sb.WriteString(strings.Repeat(" ", pad))
			}
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
		if ri == 0 {
			total := 2 * (len(widths) - 1)
			for _, w := range widths {
				total += w
			}
			sb.WriteString(strings.Repeat("-", total))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
