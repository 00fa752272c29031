package vcard

import (
	"fmt"
	"strings"
)

// ParsedNumber 从文本中解析出的号码
type ParsedNumber struct {
	Phone string
	Name  string
	Line  int
}

var columnSeparators = []string{",", "|", "\t"}

// IsMobileNumber 判断是否为 11 位且以 1 开头的手机号
func IsMobileNumber(text string) bool {
	if len(text) != 11 || text[0] != '1' {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

// ParseNumberText 解析号码文本。
// 空行与 # 开头的行被跳过；列优先按逗号、竖线、制表符切分，否则按空白切分。
// 多列时首列不是号码则作为姓名；仅一列时使用 namePrefix+行号 作为姓名。
func ParseNumberText(content, namePrefix string) []ParsedNumber {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	result := make([]ParsedNumber, 0, len(lines))
	for idx, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := splitColumns(line)
		if len(parts) == 0 {
			continue
		}

		phone := ""
		for _, part := range parts {
			if IsMobileNumber(part) {
				phone = part
			}
		}
		if phone == "" {
			continue
		}

		name := ""
		if len(parts) >= 2 {
			if !IsMobileNumber(parts[0]) {
				name = parts[0]
			}
		} else {
			name = fmt.Sprintf("%s%d", namePrefix, idx+1)
		}
		result = append(result, ParsedNumber{Phone: phone, Name: name, Line: idx + 1})
	}
	return result
}

func splitColumns(line string) []string {
	for _, sep := range columnSeparators {
		if strings.Contains(line, sep) {
			raw := strings.Split(line, sep)
			parts := make([]string, 0, len(raw))
			for _, part := range raw {
				parts = append(parts, strings.TrimSpace(part))
			}
			return parts
		}
	}
	return strings.Fields(line)
}
