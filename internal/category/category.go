// Package category decodes the two-level "Parent/Sub" category strings stored
// on records and exposes the fixed parent/subcategory tables.
package category

import (
	"strings"

	"qingbu/internal/core"
)

const Separator = "/"

// Category is a decoded category string.
type Category struct {
	Parent string
	Sub    string // empty when absent
}

// Parse splits s into parent and subcategory. Only a string with exactly one
// separator yields a subcategory; anything else is returned whole as the parent.
func Parse(s string) Category {
	parts := strings.Split(s, Separator)
	if len(parts) == 2 {
		return Category{Parent: parts[0], Sub: parts[1]}
	}
	return Category{Parent: s}
}

// Format is the inverse of Parse.
func Format(parent, sub string) string {
	if sub != "" {
		return parent + Separator + sub
	}
	return parent
}

func (c Category) String() string {
	return Format(c.Parent, c.Sub)
}

// ParentOf returns the parent component of a raw category string.
func ParentOf(s string) string {
	return Parse(s).Parent
}

type entry struct {
	parent string
	subs   []string
}

var expenseTable = []entry{
	{"餐饮", []string{"早餐", "午餐", "晚餐", "大餐", "饮料", "其他"}},
	{"交通", []string{"油费", "停车费", "洗车费", "过路费", "打车", "公交", "地铁", "其他"}},
	{"购物", []string{"服装", "鞋子", "电子产品", "日用品", "化妆品", "书籍", "其他"}},
	{"娱乐", []string{"电影", "KTV", "游戏", "旅游", "运动", "其他"}},
	{"医疗", []string{"挂号", "药品", "检查", "治疗", "其他"}},
	{"教育", []string{"学费", "培训", "书籍", "文具", "其他"}},
	{"住房", []string{"房租", "物业", "装修", "家具", "其他"}},
	{"通讯", []string{"话费", "网费", "其他"}},
	{"水电", []string{"电费", "水费", "燃气费", "其他"}},
	{"服饰", []string{"衣服", "鞋子", "配饰", "其他"}},
	{"日用品", []string{"洗漱", "清洁", "纸巾", "其他"}},
	{"零食", nil},
	{"烟酒", nil},
	{"育儿", []string{"奶粉", "纸尿裤", "辅食零食", "衣服", "玩具", "疫苗", "医疗", "保险", "其他"}},
	{"还款", []string{"信用卡", "京东白条", "花呗", "其他"}},
	{"其他", nil},
}

var incomeTable = []entry{
	{"工资", nil},
	{"奖金", []string{"年终奖", "绩效奖", "项目奖", "其他"}},
	{"投资", []string{"股票", "基金", "理财", "其他"}},
	{"兼职", nil},
	{"理财", []string{"利息", "分红", "其他"}},
	{"礼金", []string{"红包", "礼物", "其他"}},
	{"退款", nil},
	{"其他", nil},
}

var icons = map[string]string{
	"餐饮":  "🍽️",
	"交通":  "🚗",
	"购物":  "🛍️",
	"娱乐":  "🎮",
	"医疗":  "🏥",
	"教育":  "📚",
	"住房":  "🏠",
	"通讯":  "📱",
	"水电":  "⚡",
	"服饰":  "👔",
	"日用品": "🧻",
	"育儿":  "👶",
	"还款":  "💳",
	"零食":  "🍪",
	"烟酒":  "🍷",
	"工资":  "💰",
	"奖金":  "🎁",
	"投资":  "📈",
	"兼职":  "💼",
	"理财":  "🏦",
	"礼金":  "🧧",
	"退款":  "↩️",
	"其他":  "✨",
}

const defaultIcon = "✨"

func table(t core.RecordType) []entry {
	if t == core.Income {
		return incomeTable
	}
	return expenseTable
}

// Parents returns the known parent categories for the record type, in display order.
func Parents(t core.RecordType) []string {
	tbl := table(t)
	out := make([]string, len(tbl))
	for i, e := range tbl {
		out[i] = e.parent
	}
	return out
}

// Subcategories returns the fixed children of parent, or an empty slice for
// childless or unknown parents.
func Subcategories(parent string, t core.RecordType) []string {
	for _, e := range table(t) {
		if e.parent == parent {
			return append([]string{}, e.subs...)
		}
	}
	return []string{}
}

func IsKnownParent(parent string, t core.RecordType) bool {
	for _, e := range table(t) {
		if e.parent == parent {
			return true
		}
	}
	return false
}

// Icon maps a category (raw or parent) to its display icon.
func Icon(s string) string {
	if icon, ok := icons[ParentOf(s)]; ok {
		return icon
	}
	return defaultIcon
}
