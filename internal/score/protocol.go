package score

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BuildPrompt renders the scoring request sent to the model: the user
// profile, the numbered candidate list, and the strict one-line-per-item
// answer format both providers rely on.
func BuildPrompt(profile string, batch []Candidate) string {
	var b strings.Builder

	b.WriteString("你是一个个性化新闻推荐助手，请严格按照下面要求打分。\n\n")
	b.WriteString("[用户画像]\n")
	b.WriteString(strings.TrimSpace(profile))
	b.WriteString("\n\n[新闻列表]\n")

	for i, c := range batch {
		snippet := strings.TrimSpace(c.Summary)
		if snippet == "" {
			snippet = c.Title
		}
		b.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, c.Source, c.Title))
		b.WriteString(fmt.Sprintf("   摘要: %s\n", snippet))
	}

	b.WriteString("\n任务：根据用户画像逐条判断用户看到每条新闻时的兴趣程度，打出一个 0-100 的整数分：\n")
	b.WriteString("- 0 分：完全不感兴趣\n")
	b.WriteString("- 50 分：一般般，可以看看\n")
	b.WriteString("- 80 分以上：很感兴趣，强烈推荐推送\n\n")
	b.WriteString("**非常重要：每条新闻输出一行，格式为“序号. 分数”，除此之外不要输出任何解释和其他内容。**\n")

	return b.String()
}

// scoreLine matches one "index. score" answer line. The separator is
// mandatory so a run of digits can never be misread as two numbers.
var scoreLine = regexp.MustCompile(`^\s*(\d+)\s*[.．。)）:：、]\s*(-?\d+)\s*$`)

// ParseScores reads the model's answer into an index-to-score map. Lines
// that do not look like an answer line are ignored (models like to add a
// preamble); a duplicated index is a protocol break and fails the batch,
// since it could silently attach scores to the wrong items. Completeness
// is the scorer's check, not ours.
func ParseScores(text string) (map[int]int, error) {
	scores := make(map[int]int)

	for _, line := range strings.Split(text, "\n") {
		m := scoreLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		sc, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if _, dup := scores[idx]; dup {
			return nil, fmt.Errorf("duplicate index %d in response", idx)
		}
		scores[idx] = sc
	}

	return scores, nil
}
