package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// ErrMalformedTemplate 路径模板无法编译
var ErrMalformedTemplate = errors.New("malformed path template")

const (
	// 参数默认匹配到下一个分隔符为止
	defaultParam = `[^\/#\?]+?`
	// 不锚定结尾：匹配后必须紧跟分隔符或输入结束
	openEnd = `(?:[\/#\?](?=$))?(?=[\/#\?]|$)`
)

// normalizePath 去掉单个结尾斜杠
func normalizePath(path string) string {
	if strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// compileTemplate 将 `:name` 形式的路径模板编译为前缀匹配的正则
func compileTemplate(tpl string) (*regexp2.Regexp, []string, error) {
	var b strings.Builder
	var names []string
	b.WriteString("^")

	i := 0
	for i < len(tpl) {
		c := tpl[i]
		switch {
		case c == '\\' && i+1 < len(tpl):
			b.WriteString(regexp2.Escape(tpl[i+1 : i+2]))
			i += 2
		case c == ':':
			j := i + 1
			for j < len(tpl) && isNameChar(tpl[j]) {
				j++
			}
			name := tpl[i+1 : j]
			if name == "" {
				return nil, nil, fmt.Errorf("%w: missing parameter name at %d in %q", ErrMalformedTemplate, i, tpl)
			}
			pattern := defaultParam
			if j < len(tpl) && tpl[j] == '(' {
				group, end, err := readGroup(tpl, j)
				if err != nil {
					return nil, nil, err
				}
				pattern = group
				j = end
			}
			names = append(names, name)
			j = writeSegment(&b, tpl, j, pattern)
			i = j
		case c == '(':
			group, end, err := readGroup(tpl, i)
			if err != nil {
				return nil, nil, err
			}
			names = append(names, fmt.Sprintf("%d", len(names)))
			i = writeSegment(&b, tpl, end, group)
		case c == '*':
			names = append(names, fmt.Sprintf("%d", len(names)))
			b.WriteString("(.*)")
			i++
		case c == ')':
			return nil, nil, fmt.Errorf("%w: unbalanced ')' at %d in %q", ErrMalformedTemplate, i, tpl)
		case c == '/':
			b.WriteString(`\/`)
			i++
		default:
			b.WriteString(regexp2.Escape(tpl[i : i+1]))
			i++
		}
	}
	b.WriteString(openEnd)

	re, err := regexp2.Compile(b.String(), regexp2.None)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	return re, names, nil
}

// writeSegment 写入参数分组，处理紧随其后的 `?` 可选修饰符
func writeSegment(b *strings.Builder, tpl string, pos int, pattern string) int {
	if pos < len(tpl) && tpl[pos] == '?' {
		// 可选参数连同前导斜杠一起可选
		s := b.String()
		if strings.HasSuffix(s, `\/`) {
			b.Reset()
			b.WriteString(s[:len(s)-2])
			b.WriteString(`(?:\/(` + pattern + `))?`)
			return pos + 1
		}
		b.WriteString("(" + pattern + ")?")
		return pos + 1
	}
	b.WriteString("(" + pattern + ")")
	return pos
}

// readGroup 读取从 start 处 '(' 开始的平衡分组，返回内部正则与结束位置
func readGroup(tpl string, start int) (string, int, error) {
	depth := 0
	for j := start; j < len(tpl); j++ {
		switch tpl[j] {
		case '\\':
			j++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				inner := tpl[start+1 : j]
				if inner == "" {
					return "", 0, fmt.Errorf("%w: empty group at %d in %q", ErrMalformedTemplate, start, tpl)
				}
				return inner, j + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("%w: unbalanced '(' at %d in %q", ErrMalformedTemplate, start, tpl)
}

func isNameChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
