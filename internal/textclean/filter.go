// Package textclean 提供语言过滤与监管样板文本清洗，均为纯函数。
package textclean

import "unicode"

// englishRatio: ASCII 字母占全部词字符的最低比例（严格大于）。
const englishRatio = 0.70

// IsEnglish 判断文本是否“主要为英文”。
// 词字符：Unicode 字母、数字与下划线；英文字符：ASCII 字母。
// 无词字符时返回 false。
func IsEnglish(text string) bool {
	ascii, words := 0, 0
	for _, r := range text {
		if isWordRune(r) {
			words++
			if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
				ascii++
			}
		}
	}
	return words > 0 && float64(ascii)/float64(words) > englishRatio
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
