// internal/services/json_cleaner.go
package services

import (
	"strings"
	"unicode"
)

// 模型输出中常见的噪声：Markdown 代码块、BOM、特殊空白
var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```JSON", "",
	"```", "",
	"\ufeff", "",
	"\u00a0", " ",
	"\u2028", "\n",
	"\u2029", "\n",
)

// 字符串外的全角结构符号
var structuralPunctuationMap = map[rune]rune{
	'：': ':',
	'，': ',',
	'【': '[',
	'】': ']',
	'［': '[',
	'］': ']',
	'｛': '{',
	'｝': '}',
}

// 开引号 -> 对应的闭引号
var quotePairs = map[rune]rune{
	'“': '”',
	'„': '”',
	'「': '」',
	'『': '』',
}

// normalizeJSONStructure 统一字符串外的标点与引号，丢弃字符串外的非 ASCII 字符
func normalizeJSONStructure(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	inString := false
	escaped := false
	closing := '"'

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == closing || r == '"':
				inString = false
				closing = '"'
				builder.WriteRune('"')
				continue
			}
			builder.WriteRune(r)
			continue
		}

		if replacement, ok := structuralPunctuationMap[r]; ok {
			builder.WriteRune(replacement)
			continue
		}
		if c, ok := quotePairs[r]; ok {
			inString = true
			closing = c
			builder.WriteRune('"')
			continue
		}
		if r == '"' {
			inString = true
			closing = '"'
			builder.WriteRune(r)
			continue
		}
		if r > unicode.MaxASCII && !unicode.IsSpace(r) {
			continue
		}
		builder.WriteRune(r)
	}

	return builder.String()
}

// cleanJSONString 从模型返回的文本中截取第一个完整的 JSON 值
func cleanJSONString(s string) string {
	s = strings.TrimSpace(jsonNoiseReplacer.Replace(s))
	if s == "" {
		return s
	}

	// 移除零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = normalizeJSONStructure(s[start:])

	openCh, closeCh := byte('{'), byte('}')
	if s[0] == '[' {
		openCh, closeCh = '[', ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openCh:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}

	// 没有匹配的结束符时退回到最后一个结束符
	if end := strings.LastIndexByte(s, closeCh); end != -1 {
		return s[:end+1]
	}
	return strings.TrimSpace(s)
}
