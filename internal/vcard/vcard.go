// Package vcard 生成设备可导入的 VCF 2.1 文本，并解析号码文本
package vcard

import (
	"fmt"
	"strings"
)

// Card 单个联系人卡片
type Card struct {
	Name  string
	Phone string
}

// Build 按输入顺序生成 VCF 文本，相同输入得到相同输出
func Build(cards []Card) string {
	var b strings.Builder
	for _, card := range cards {
		writeCard(&b, card)
	}
	return b.String()
}

func writeCard(b *strings.Builder, card Card) {
	name := sanitizeField(card.Name)
	b.WriteString("BEGIN:VCARD\n")
	b.WriteString("VERSION:2.1\n")
	fmt.Fprintf(b, "FN:%s\n", name)
	fmt.Fprintf(b, "N:%s;;\n", name)
	if phone := strings.TrimSpace(card.Phone); phone != "" {
		formatted := FormatPhone(phone)
		fmt.Fprintf(b, "TEL;CELL:%s\n", formatted)
		fmt.Fprintf(b, "TEL;TYPE=CELL:%s\n", formatted)
	}
	b.WriteString("END:VCARD\n")
}

// FormatPhone 将 11 位大陆手机号格式化为 +86 XXX XXXX XXXX，其余原样返回
func FormatPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		return fmt.Sprintf("+86 %s %s %s", digits[0:3], digits[3:7], digits[7:11])
	}
	return phone
}

// 换行会破坏卡片结构
func sanitizeField(value string) string {
	value = strings.TrimSpace(value)
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
}

// CountCards 统计文本中的卡片数量
func CountCards(content string) int {
	return strings.Count(content, "BEGIN:VCARD")
}
