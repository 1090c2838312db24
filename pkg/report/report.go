// Package report groups card statements into the notification digest.
package report

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/meisai/pkg/csv"
	"github.com/yurifrl/meisai/pkg/models"
)

// EmptyMessage is the digest sent when no statement was collected.
const EmptyMessage = "利用明細が見つかりませんでした\n"

// Group is every statement of one card merged into one total.
type Group struct {
	CardName string
	Total    *models.PaymentTotal
	// Sources counts the statements merged into Total.
	Sources int
}

// Build groups statements by card name. Groups follow the order cards are
// first seen; totals sharing a period key are added with the same rule the
// parser uses for rows.
func Build(statements []models.CardStatement) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, st := range statements {
		i, ok := index[st.CardName]
		if !ok {
			i = len(groups)
			index[st.CardName] = i
			groups = append(groups, Group{CardName: st.CardName, Total: models.NewPaymentTotal()})
		}
		groups[i].Total.Merge(st.Total)
		groups[i].Sources++
	}
	return groups
}

// Compose renders the digest for statements.
func Compose(statements []models.CardStatement) string {
	return Text(Build(statements))
}

// Text renders one section per card: a header line, one "key: amount" line
// per period key, and a blank line.
func Text(groups []Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%sの利用明細\n", g.CardName)
		for _, k := range g.Total.Keys() {
			v, _ := g.Total.Get(k)
			fmt.Fprintf(&b, "%s: %s\n", k, v.String())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// YAML renders groups as a sequence of {card, totals} mappings with totals
// kept in period key order.
func YAML(groups []Group) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, g := range groups {
		totals := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range g.Total.Keys() {
			v, _ := g.Total.Get(k)
			tag := "!!int"
			if !v.IsInteger() {
				tag = "!!float"
			}
			totals.Content = append(totals.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: string(k)},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.String()},
			)
		}
		entry := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "card"},
			{Kind: yaml.ScalarNode, Value: g.CardName},
			{Kind: yaml.ScalarNode, Value: "totals"},
			totals,
		}}
		seq.Content = append(seq.Content, entry)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{seq}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return out, nil
}

type line struct {
	card   string
	key    models.PeriodKey
	amount string
}

func (l line) Values() []string {
	return []string{l.card, string(l.key), l.amount}
}

// CSV renders one "card,period,amount" row per card and period key.
func CSV(groups []Group) []byte {
	var lines []line
	for _, g := range groups {
		for _, k := range g.Total.Keys() {
			v, _ := g.Total.Get(k)
			lines = append(lines, line{card: g.CardName, key: k, amount: v.String()})
		}
	}
	return csv.Create([]string{"card", "period", "amount"}, lines, nil)
}

// Filter keeps the groups whose card name contains substr.
func Filter(groups []Group, substr string) []Group {
	if substr == "" {
		return groups
	}
	var out []Group
	for _, g := range groups {
		if strings.Contains(strings.ToLower(g.CardName), strings.ToLower(substr)) {
			out = append(out, g)
		}
	}
	return out
}
