package slack

import (
	"fmt"
	"strconv"

	"github.com/JakeFAU/dorank/internal/stats"
)

// Block is a Slack Block Kit layout block.
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var emoji = map[string]string{
	stats.KeyMarketplaceRankMin:      ":shopping_trolley:",
	stats.KeyIssueCreditCountMax:     ":female-technologist:",
	stats.KeyProjectsSupportedMax:    ":female-construction-worker:",
	stats.KeyCaseStudiesPublishedMax: ":memo:",
}

// Render converts a message into blocks and a plain-text fallback.
func Render(msg stats.Message) ([]Block, string) {
	if msg.IsError() {
		text := fmt.Sprintf("An unknown error has occurred: `%s`", msg.ErrorText)
		return []Block{section(text)}, text
	}

	report := msg.Report
	blocks := []Block{section(report.Header), {Type: "divider"}}
	for _, s := range report.Sections {
		blocks = append(blocks, section(sectionLine(s)))
	}
	blocks = append(blocks, Block{Type: "divider"})
	if report.Footer != "" {
		blocks = append(blocks, Block{
			Type:     "context",
			Elements: []Text{{Type: "mrkdwn", Text: report.Footer}},
		})
	}
	return blocks, report.Header
}

func section(text string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: text}}
}

func sectionLine(s stats.Section) string {
	label := s.Label
	if s.Link != "" {
		label = fmt.Sprintf("<%s|%s>", s.Link, s.Label)
	}
	line := fmt.Sprintf("%s: %s", label, formatNumber(s.Observed))
	if e, ok := emoji[s.Metric]; ok {
		line = e + " " + line
	}
	if s.WeeklyDelta != nil {
		line += fmt.Sprintf(" (%s this week)", formatDelta(*s.WeeklyDelta))
	}
	switch {
	case s.IsRecord && s.Previous == nil:
		line += " :tada: first recorded value"
	case s.IsRecord:
		line += fmt.Sprintf(" :tada: new record, previously %s", formatNumber(*s.Previous))
	case s.Previous != nil:
		line += fmt.Sprintf(" (record %s, %s away)", formatNumber(*s.Previous), formatNumber(s.Gap))
	}
	return line
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDelta(v float64) string {
	if v > 0 {
		return "+" + formatNumber(v)
	}
	return formatNumber(v)
}
